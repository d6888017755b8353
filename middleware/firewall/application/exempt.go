package application

import (
	"strings"

	"github.com/ryanuber/go-glob"
)

// PathExempt reporta se o path casa com algum padrão de exemption.
//
//   - com "*": glob sobre o path inteiro ("*.jpg")
//   - começando com "/": prefixo ("/media/")
//   - demais: substring (".css")
func PathExempt(path string, patterns []string) bool {
	for _, p := range patterns {
		switch {
		case p == "":
			continue
		case strings.Contains(p, glob.GLOB):
			if glob.Glob(p, path) {
				return true
			}
		case strings.HasPrefix(p, "/"):
			if strings.HasPrefix(path, p) {
				return true
			}
		default:
			if strings.Contains(path, p) {
				return true
			}
		}
	}
	return false
}
