// utilitário pequeno para formatação de valores numéricos em headers.

package firewall

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// formatSeconds escreve a duração em segundos, sem notação científica.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
