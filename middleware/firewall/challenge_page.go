package firewall

import (
	"bytes"
	"html/template"
	"net/http"

	"firewall-gateway/middleware/firewall/domain"
)

var challengePage = template.Must(template.New("challenge").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="robots" content="noindex, nofollow">
<title>Checking your browser</title>
<style>body{font-family:sans-serif;display:flex;align-items:center;justify-content:center;height:100vh;margin:0;color:#333}</style>
</head>
<body>
<noscript><p>JavaScript is required to access this site.</p></noscript>
<p id="status">Checking your browser&hellip;</p>
<script>
(function () {
  var broken = {{.Broken}};
  var dummy = {{.Dummy}};
  var secretLength = {{.SecretLength}};
  var maxAge = {{.MaxAge}};
  var token = "";

  if (!navigator.webdriver) {
    var fixed = broken.split("").reverse().join("").split(dummy).join("");
    try {
      var raw = atob(fixed);
      if (raw.length === secretLength) {
        token = btoa(raw);
        var attrs = "; path=/; max-age=" + maxAge + "; SameSite=Strict";
        document.cookie = "challengeToken=" + token + attrs;
        document.cookie = "challengeId=" + broken + attrs;
        window.location.reload();
      }
    } catch (e) {}
  }

  var origFetch = window.fetch;
  if (origFetch && token) {
    window.fetch = function (input, init) {
      init = init || {};
      var headers = new Headers(init.headers || {});
      headers.set("X-Challenge-Token", token);
      headers.set("X-Challenge-Id", broken);
      init.headers = headers;
      return origFetch.call(this, input, init);
    };
  }
})();
</script>
</body>
</html>
`))

type challengeView struct {
	Broken       string
	Dummy        string
	SecretLength int
	MaxAge       int
}

func renderChallenge(w http.ResponseWriter, ch domain.Challenge, cfg domain.ChallengeConfig) error {
	var buf bytes.Buffer
	err := challengePage.Execute(&buf, challengeView{
		Broken:       ch.Broken,
		Dummy:        cfg.DummyChar,
		SecretLength: cfg.SecretLength,
		MaxAge:       cfg.VerifiedTTL,
	})
	if err != nil {
		return err
	}

	h := w.Header()
	privateNoStore(h)
	h.Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err = buf.WriteTo(w)
	return err
}

// challengeCredentials lê o par token/id dos headers ou, na falta, dos cookies.
func challengeCredentials(r *http.Request) (id, token string) {
	id = r.Header.Get("X-Challenge-Id")
	token = r.Header.Get("X-Challenge-Token")
	if id != "" && token != "" {
		return id, token
	}
	if c, err := r.Cookie("challengeId"); err == nil {
		id = c.Value
	}
	if c, err := r.Cookie("challengeToken"); err == nil {
		token = c.Value
	}
	return id, token
}
