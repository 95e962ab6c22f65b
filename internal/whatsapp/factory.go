package whatsapp

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3" // device store driver
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"

	"github.com/nerrad567/wa-gateway/internal/credentials"
	"github.com/nerrad567/wa-gateway/internal/session"
)

// Options configures the Factory.
type Options struct {
	// Logger receives client and device store logs, tagged per tenant.
	Logger *slog.Logger

	// DeviceName is shown in the account's list of linked devices.
	DeviceName string
}

// Factory builds whatsmeow-backed session clients.
type Factory struct {
	logger *slog.Logger
}

var _ session.ClientFactory = (*Factory)(nil)

// NewFactory creates a Factory. The device name is process-wide in
// whatsmeow, so it is applied here once.
func NewFactory(opts Options) *Factory {
	if opts.DeviceName != "" {
		store.DeviceProps.Os = &opts.DeviceName
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Factory{logger: logger.With("component", "whatsapp")}
}

// storeDSN returns the sqlite DSN for a tenant's device store.
func storeDSN(m credentials.Material) string {
	return "file:" + m.StorePath() + "?_foreign_keys=on"
}

// NewClient opens the tenant's device store and wraps a whatsmeow client
// around its first device. A tenant that never paired gets a fresh device.
func (f *Factory) NewClient(ctx context.Context, m credentials.Material, handle session.ClientEventHandler) (session.Client, error) {
	log := f.logger.With("tenant_id", m.TenantID)

	container, err := sqlstore.New(ctx, "sqlite3", storeDSN(m), newLogger(log).Sub("store"))
	if err != nil {
		return nil, fmt.Errorf("opening device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("loading device: %w", err)
	}

	wa := whatsmeow.NewClient(device, newLogger(log).Sub("client"))
	return newClient(wa, container, handle, log), nil
}
