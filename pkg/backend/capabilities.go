package backend

import "context"

// Capabilities is an immutable record of what the active backend variant
// supports. Values are fixed when Init completes and must not change for
// the lifetime of the adapter instance; before Init (and after a failed
// Init) every flag is false.
//
// Each flag gates exactly one group of adapter operations:
//
//	Channels     → ListChannels
//	Cron         → ListCronJobs
//	Delegation   → Delegate
//	MultiUser    → ListUsers
//	SkillInstall → InstallSkill
//	Realtime     → PushToTalk and the push event stream
//	Monitoring   → Status
//	Ready        → every domain operation (set by a successful Init)
type Capabilities struct {
	Channels     bool `json:"channels"`
	Cron         bool `json:"cron"`
	Delegation   bool `json:"delegation"`
	MultiUser    bool `json:"multiUser"`
	SkillInstall bool `json:"skillInstall"`
	Realtime     bool `json:"realtime"`
	Monitoring   bool `json:"monitoring"`
	Ready        bool `json:"ready"`
}

// Capability names a single flag for lookups through a Negotiator.
type Capability string

const (
	CapChannels     Capability = "channels"
	CapCron         Capability = "cron"
	CapDelegation   Capability = "delegation"
	CapMultiUser    Capability = "multiUser"
	CapSkillInstall Capability = "skillInstall"
	CapRealtime     Capability = "realtime"
	CapMonitoring   Capability = "monitoring"
	CapReady        Capability = "ready"
)

// Has returns the value of the named flag. Unknown names are false.
func (c Capabilities) Has(name Capability) bool {
	switch name {
	case CapChannels:
		return c.Channels
	case CapCron:
		return c.Cron
	case CapDelegation:
		return c.Delegation
	case CapMultiUser:
		return c.MultiUser
	case CapSkillInstall:
		return c.SkillInstall
	case CapRealtime:
		return c.Realtime
	case CapMonitoring:
		return c.Monitoring
	case CapReady:
		return c.Ready
	default:
		return false
	}
}

// Negotiator exposes an adapter's capabilities as a read-only projection.
// Lookups return a stable boolean for the lifetime of the adapter.
type Negotiator struct {
	adapter Adapter
}

// NewNegotiator creates a negotiator for the given adapter.
func NewNegotiator(adapter Adapter) *Negotiator {
	return &Negotiator{adapter: adapter}
}

// Has reports whether the active adapter supports the named capability.
// Before Init completes this is false for every flag, never garbage.
func (n *Negotiator) Has(name Capability) bool {
	return n.adapter.Capabilities().Has(name)
}

// Capabilities returns the full capability record.
func (n *Negotiator) Capabilities() Capabilities {
	return n.adapter.Capabilities()
}

// capsKey is the context key for an installed capability set.
type capsKey struct{}

// WithCapabilities installs the adapter's capability projection into a
// context, making it the active capability scope for everything below.
func WithCapabilities(ctx context.Context, n *Negotiator) context.Context {
	return context.WithValue(ctx, capsKey{}, n)
}

// CapabilitiesFromContext returns the active capability projection.
// Calling it outside a WithCapabilities scope is a programming error and
// panics, so integration mistakes surface immediately instead of reading
// silently-false defaults.
func CapabilitiesFromContext(ctx context.Context) *Negotiator {
	n, ok := ctx.Value(capsKey{}).(*Negotiator)
	if !ok {
		panic("backend: CapabilitiesFromContext called outside a WithCapabilities scope")
	}
	return n
}
