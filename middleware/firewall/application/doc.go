// Package application contém os casos de uso do firewall de admissão.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Gate.Admit(req) decide allow/challenge/deny antes da aplicação e
// Gate.Complete(adm, status) roda o rate limit depois da resposta.
package application
