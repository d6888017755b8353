package domain

import "context"

// SlotPool é um semáforo: capacidade finita compartilhada entre goroutines
// (requests em voo no gateway, lookups DNS simultâneos no resolver).
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar. O release
// devolvido deve ser chamado exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
