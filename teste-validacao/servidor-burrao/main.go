package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Upstream "burro" para validar o gateway à mão. /lento e /erro disparam a
// checagem de rate limit pós-resposta; /showTela é o caminho rápido 2xx.
func main() {
	http.HandleFunc("/showTela", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>")
		fmt.Printf("Log: %s acessou /showTela (XFF=%q)\n", r.RemoteAddr, r.Header.Get("X-Forwarded-For"))
	})
	http.HandleFunc("/lento", func(w http.ResponseWriter, r *http.Request) {
		ms, err := strconv.Atoi(r.URL.Query().Get("ms"))
		if err != nil || ms <= 0 {
			ms = 250
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		fmt.Fprintf(w, "demorei %dms\n", ms)
	})
	http.HandleFunc("/erro", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(r.URL.Query().Get("status"))
		if err != nil || code < 300 || code > 599 {
			code = http.StatusInternalServerError
		}
		http.Error(w, http.StatusText(code), code)
	})
	http.HandleFunc("/assets/app.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		fmt.Fprint(w, "console.log('asset');\n")
	})

	fmt.Println("Servidor rodando em http://localhost:8081")
	err := http.ListenAndServe(":8081", nil)
	if err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}
