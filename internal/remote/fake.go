package remote

import (
	"context"
	"sync"
)

// Fake is a scriptable in-memory Authority for tests: map-backed channel
// data plus per-identifier error injection.
//
// Thread-safety: all methods are safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	channels map[string]ChannelInfo
	errs     map[string]error
	calls    int
}

// NewFake creates an empty fake authority.
func NewFake() *Fake {
	return &Fake{
		channels: make(map[string]ChannelInfo),
		errs:     make(map[string]error),
	}
}

// SetChannel scripts the authoritative answer for a channel identifier.
func (f *Fake) SetChannel(info ChannelInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[info.ChannelIdentifier] = info
	delete(f.errs, info.ChannelIdentifier)
}

// SetError scripts an error for a channel identifier. Use ErrNotFound for a
// 404, anything else for a transport failure.
func (f *Fake) SetError(channelID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[channelID] = err
}

// Remove deletes a scripted channel so lookups return ErrNotFound.
func (f *Fake) Remove(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channelID)
	delete(f.errs, channelID)
}

// Calls returns how many GetChannel calls the fake has served.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// GetChannel implements Authority.
func (f *Fake) GetChannel(_ context.Context, channelID string) (*ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[channelID]; ok {
		return nil, err
	}
	info, ok := f.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := info
	return &copied, nil
}

// FindChannelsByMembers implements Authority. Matches any scripted channel
// whose member names are a superset of the requested names.
func (f *Fake) FindChannelsByMembers(_ context.Context, memberNames []string) ([]ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []ChannelInfo
	for _, info := range f.channels {
		if containsAllNames(info, memberNames) {
			out = append(out, info)
		}
	}
	return out, nil
}

func containsAllNames(info ChannelInfo, names []string) bool {
	have := make(map[string]bool, len(info.Members))
	for _, m := range info.Members {
		have[m.Name] = true
	}
	for _, n := range names {
		if !have[n] {
			return false
		}
	}
	return true
}

var _ Authority = (*Fake)(nil)
