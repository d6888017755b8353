package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"firewall-gateway/middleware/firewall/domain"
)

// DefaultBanDuration vale quando Ban recebe duração <= 0.
const DefaultBanDuration = time.Hour

// BanRegistry guarda os IPs banidos globalmente. A expiração fica a cargo do TTL do store.
type BanRegistry struct {
	Store domain.Store
}

func NewBanRegistry(store domain.Store) *BanRegistry {
	return &BanRegistry{Store: store}
}

func banKey(ip string) string { return domain.KeyBan + ip }

// IsBanned reporta se existe um ban não expirado para o IP.
func (b *BanRegistry) IsBanned(ctx context.Context, ip string) (bool, error) {
	_, err := b.Store.Get(ctx, banKey(ip))
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ban lookup: %w", err)
	}
	return true, nil
}

// Ban grava (ou renova) o ban. Idempotente: repetir só reinicia o TTL.
func (b *BanRegistry) Ban(ctx context.Context, ip string, d time.Duration) error {
	if d <= 0 {
		d = DefaultBanDuration
	}
	if err := b.Store.Set(ctx, banKey(ip), []byte("1"), d); err != nil {
		return fmt.Errorf("ban %s: %w", ip, err)
	}
	return nil
}
