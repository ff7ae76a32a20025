package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/famcall/internal/api"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/store"
	"github.com/matheus3301/famcall/internal/tui/client"
	"github.com/matheus3301/famcall/internal/tui/ui"
)

const historyLimit = 100

// ViewModel caches the daemon's call state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client   *client.Client
	info     *api.CallInfo
	history  []store.Message
	contacts []api.Contact
	names    map[string]string
	Flash    *ui.FlashModel

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{
		client:    c,
		names:     make(map[string]string),
		Flash:     ui.NewFlashModel(),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

func (vm *ViewModel) setInfo(info *api.CallInfo) {
	vm.mu.Lock()
	prev := vm.info
	vm.info = info
	if info.Peer != nil && info.Peer.Name != "" {
		vm.names[info.Peer.ID] = info.Peer.Name
	}
	vm.mu.Unlock()

	if prev != nil && prev.State != info.State {
		vm.announce(prev, info)
	}
	vm.signalRefresh()
}

// announce flashes transitions that happen without a key press.
func (vm *ViewModel) announce(prev, next *api.CallInfo) {
	if prev.State == call.StateIncoming.String() {
		vm.Flash.Dismiss()
	}
	switch {
	case next.State == call.StateIncoming.String() && next.Peer != nil:
		vm.Flash.Ring(fmt.Sprintf("Incoming %s call from %s", next.Kind, next.Peer.DisplayName()))
	case next.State == call.StateNone.String() && prev.State == call.StateIncoming.String() && prev.Peer != nil:
		vm.Flash.Info("Call from " + prev.Peer.DisplayName() + " ended")
	case next.State == call.StateNone.String() && prev.State == call.StateOutgoing.String():
		vm.Flash.Info("Call not answered")
	case next.State == call.StateNone.String() && prev.State == call.StateActive.String():
		vm.Flash.Info("Call ended")
	}
}

// LoadCall fetches the current call state.
func (vm *ViewModel) LoadCall(ctx context.Context) error {
	info, err := vm.client.GetCall(ctx)
	if err != nil {
		return err
	}
	vm.setInfo(info)
	return nil
}

// Watch streams call state into the model until ctx ends or the stream
// fails.
func (vm *ViewModel) Watch(ctx context.Context) error {
	return vm.client.WatchCall(ctx, vm.setInfo)
}

// LoadContacts fetches the profile directory with presence, and the names
// records are shown with.
func (vm *ViewModel) LoadContacts(ctx context.Context) error {
	resp, err := vm.client.ListContacts(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.contacts = resp.Contacts
	for _, p := range resp.Contacts {
		vm.names[p.ID] = p.DisplayName()
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadHistory fetches recent call records.
func (vm *ViewModel) LoadHistory(ctx context.Context) error {
	resp, err := vm.client.CallHistory(ctx, historyLimit)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.history = resp.Calls
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// StartCall rings peerID.
func (vm *ViewModel) StartCall(ctx context.Context, peerID string, kind call.MediaKind) error {
	info, err := vm.client.StartCall(ctx, peerID, kind)
	if err != nil {
		return err
	}
	vm.setInfo(info)
	return nil
}

// Accept answers the ringing call.
func (vm *ViewModel) Accept(ctx context.Context) error {
	info, err := vm.client.AcceptCall(ctx)
	if err != nil {
		return err
	}
	vm.setInfo(info)
	return nil
}

// End hangs up, cancels or declines, whichever applies.
func (vm *ViewModel) End(ctx context.Context) error {
	info, err := vm.client.EndCall(ctx)
	if err != nil {
		return err
	}
	vm.setInfo(info)
	return nil
}

// FlipCamera switches to the next camera.
func (vm *ViewModel) FlipCamera(ctx context.Context) error {
	resp, err := vm.client.FlipCamera(ctx)
	if err != nil {
		return err
	}
	if resp.Switched {
		vm.Flash.Info("Camera: " + resp.Label)
	} else {
		vm.Flash.Warn("No other camera")
	}
	vm.signalRefresh()
	return nil
}

// OpenLink rings the session named by a famcall:// link.
func (vm *ViewModel) OpenLink(ctx context.Context, link string) error {
	info, err := vm.client.OpenLink(ctx, link)
	if err != nil {
		return err
	}
	vm.setInfo(info)
	return nil
}

// Info returns the latest call state, or nil before the first load.
func (vm *ViewModel) Info() *api.CallInfo {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.info
}

// State returns the latest call state name, or empty before the first load.
func (vm *ViewModel) State() string {
	if info := vm.Info(); info != nil {
		return info.State
	}
	return ""
}

// HasButton reports whether the call screen currently offers b.
func (vm *ViewModel) HasButton(b call.Button) bool {
	info := vm.Info()
	if info == nil {
		return false
	}
	for _, have := range info.View.Buttons {
		if have == b {
			return true
		}
	}
	return false
}

// History returns a snapshot of the loaded call records.
func (vm *ViewModel) History() []store.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.history
}

// Contacts returns the last loaded directory.
func (vm *ViewModel) Contacts() []api.Contact {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.contacts
}

// Names returns a copy of the peer names seen so far.
func (vm *ViewModel) Names() map[string]string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	out := make(map[string]string, len(vm.names))
	for k, v := range vm.names {
		out[k] = v
	}
	return out
}
