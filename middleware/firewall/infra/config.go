package infra

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"firewall-gateway/middleware/firewall/domain"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// StaticConfig é um ConfigProvider fixo.
type StaticConfig struct {
	cfg domain.Config
}

func NewStaticConfig(cfg domain.Config) *StaticConfig { return &StaticConfig{cfg: cfg} }

func (s *StaticConfig) Config() domain.Config { return s.cfg }

// ParseConfig decodifica YAML por cima dos defaults e valida.
// Campos ausentes mantêm o valor padrão.
func ParseConfig(data []byte) (domain.Config, error) {
	cfg := domain.DefaultConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return domain.Config{}, fmt.Errorf("parse firewall config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return domain.Config{}, fmt.Errorf("invalid firewall config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile lê e valida um arquivo YAML.
func LoadConfigFile(path string) (domain.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Config{}, fmt.Errorf("read firewall config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// FileConfig é um ConfigProvider lido de arquivo e recarregado quando o arquivo muda.
// Um reload inválido é logado e ignorado; a última configuração válida continua valendo.
type FileConfig struct {
	path     string
	current  atomic.Pointer[domain.Config]
	logger   *zap.Logger
	debounce time.Duration
}

type FileConfigOption func(*FileConfig)

func WithConfigLogger(l *zap.Logger) FileConfigOption {
	return func(f *FileConfig) { f.logger = l }
}

func WithDebounce(d time.Duration) FileConfigOption {
	return func(f *FileConfig) { f.debounce = d }
}

func NewFileConfig(path string, opts ...FileConfigOption) (*FileConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f := &FileConfig{
		path:     abs,
		logger:   zap.NewNop(),
		debounce: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}

	cfg, err := LoadConfigFile(abs)
	if err != nil {
		return nil, err
	}
	f.current.Store(&cfg)
	return f, nil
}

func (f *FileConfig) Config() domain.Config { return *f.current.Load() }

// Reload relê o arquivo agora.
func (f *FileConfig) Reload() error {
	cfg, err := LoadConfigFile(f.path)
	if err != nil {
		return err
	}
	f.current.Store(&cfg)
	return nil
}

// Watch observa o diretório do arquivo até o ctx encerrar.
func (f *FileConfig) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != f.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				debounce = time.After(f.debounce)
			case <-debounce:
				debounce = nil
				if err := f.Reload(); err != nil {
					f.logger.Error("firewall config reload failed, keeping previous", zap.String("path", f.path), zap.Error(err))
					continue
				}
				f.logger.Info("firewall config reloaded", zap.String("path", f.path))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.logger.Warn("firewall config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
