package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config/di"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/ledger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/messenger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/registry"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/store"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/wallet"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

const shutdownTimeout = 10 * time.Second

type Daemon struct {
	container *di.Container
}

func NewDaemon(container *di.Container) *Daemon {
	return &Daemon{container}
}

// Execute restores the ledger, wires event delivery and serves the API until
// ctx is cancelled.
func (d *Daemon) Execute(ctx context.Context) error {
	state := d.state()
	snapshots := d.container.GetSnapshotStore()
	manager := d.container.GetEventManager()

	if err := Restore(state, snapshots); err != nil {
		return err
	}

	SnapshotOnCommit(manager, state, snapshots)

	if config.Get().EventsSupported {
		publisher, err := d.container.GetPublisher()
		if err != nil {
			return xerrors.Errorf("publisher: %w", err)
		}
		if !di.IsNopPublisher(publisher) {
			messenger.Forward(manager, publisher)
			zap.L().With(zap.String("messenger", config.Get().Messenger)).Info("Daemon: Forwarding events")
		}
	}

	srv := &http.Server{
		Addr:    ":" + config.Get().ApiPort,
		Handler: d.container.GetApiServer().Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().With(zap.String("port", config.Get().ApiPort)).Info("Daemon: Serving marketplace api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			zap.L().With(zap.Error(err)).Error("Daemon: Failed to start api")
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().With(zap.Error(err)).Warn("Daemon: Api shutdown")
	}

	manager.Close()

	if err := snapshots.Save(Capture(context.Background(), state)); err != nil {
		zap.L().With(zap.Error(err)).Error("Daemon: Failed to save final snapshot")
		return err
	}

	zap.L().Info("Daemon: Stopped")

	return nil
}

// State is what the daemon persists: the ledger and the sandbox registry and
// wallet it settles against.
type State struct {
	Ledger   *ledger.Ledger
	Registry registry.Registry
	Wallet   wallet.Wallet
}

func (d *Daemon) state() State {
	return State{
		Ledger:   d.container.GetLedger(),
		Registry: d.container.GetRegistry(),
		Wallet:   d.container.GetWallet(),
	}
}

// Capture takes the ledger and collaborator snapshots between invocations.
func Capture(ctx context.Context, state State) store.SnapshotFile {
	var file store.SnapshotFile
	state.Ledger.Capture(ctx, func(snap ledger.Snapshot) {
		file.Ledger = snap
		registrySnap := state.Registry.Snapshot(ctx)
		walletSnap := state.Wallet.Snapshot(ctx)
		file.Registry = &registrySnap
		file.Wallet = &walletSnap
	})

	return file
}

// Restore loads the newest snapshot, if any, into the ledger and its
// collaborators. A snapshot without collaborator state cannot be settled
// against, so the ledger then starts empty.
func Restore(state State, snapshots store.SnapshotStore) error {
	file, err := snapshots.LoadLatest()
	if err != nil {
		return xerrors.Errorf("load snapshot: %w", err)
	}
	if file == nil {
		zap.L().Info("Daemon: No snapshot found, starting empty")
		return nil
	}

	snap := file.Ledger
	if file.Registry == nil || file.Wallet == nil {
		zap.L().With(zap.Uint64("seq", snap.Seq)).Warn("Daemon: Snapshot has no registry or wallet state, starting empty")
		return nil
	}

	if err := state.Registry.Restore(*file.Registry); err != nil {
		return xerrors.Errorf("restore registry %d: %w", snap.Seq, err)
	}
	if err := state.Wallet.Restore(*file.Wallet); err != nil {
		return xerrors.Errorf("restore wallet %d: %w", snap.Seq, err)
	}
	if err := state.Ledger.Restore(snap); err != nil {
		return xerrors.Errorf("restore snapshot %d: %w", snap.Seq, err)
	}

	zap.L().With(
		zap.Uint64("seq", snap.Seq),
		zap.Int("listings", len(snap.Listings)),
		zap.Int("sellers", len(snap.Proceeds)),
		zap.Int("tokens", len(file.Registry.Tokens)),
		zap.Int("balances", len(file.Wallet.Balances)),
	).Info("Daemon: Ledger restored")

	return nil
}

// SnapshotOnCommit saves a snapshot after every committed invocation.
func SnapshotOnCommit(manager *event.Manager, state State, snapshots store.SnapshotStore) {
	manager.AddEventListener(event.InvocationCommittedEvent, func(interface{}) {
		if err := snapshots.Save(Capture(context.Background(), state)); err != nil {
			zap.L().With(zap.Error(err)).Error("Daemon: Failed to save snapshot")
		}
	})
}
