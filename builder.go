package goSession

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/cookie"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. A Builder can be used for one successful Build only.
type Builder struct {
	config Config
	master []byte

	store     IdentityStore
	auditSink AuditSink
	logger    zerolog.Logger
	clock     Clock

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the configuration. The slice of namespaces is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithMasterSecret sets the secret both cookie key generations derive from. It must be at
// least [cookie.MinMasterSecretSize] bytes. The slice is copied and wiped after Build.
func (b *Builder) WithMasterSecret(secret []byte) *Builder {
	b.master = cloneBytes(secret)
	return b
}

// WithIdentityStore sets the store used to hydrate users.
func (b *Builder) WithIdentityStore(store IdentityStore) *Builder {
	b.store = store
	return b
}

// WithAuditSink sets the audit sink. It is only used when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, derives the keyring and returns the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(b.master) == 0 {
		return nil, errors.New("master secret required")
	}
	if b.store == nil {
		return nil, errors.New("identity store required")
	}

	keyring, err := cookie.NewKeyring(b.master)
	if err != nil {
		return nil, err
	}
	for i := range b.master {
		b.master[i] = 0
	}
	b.master = nil

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:     cfg,
		keyring:    keyring,
		store:      b.store,
		logger:     b.logger,
		clock:      clock,
		namespaces: make([]*Namespace, 0, len(cfg.Namespaces)),
		byName:     make(map[string]*Namespace, len(cfg.Namespaces)),
	}

	for _, nc := range cfg.Namespaces {
		policy, err := nc.policy()
		if err != nil {
			return nil, fmt.Errorf("namespace %q: %w", nc.Name, err)
		}
		ns := &Namespace{
			engine:       engine,
			name:         nc.Name,
			policy:       policy,
			requiredRole: nc.RequiredRole,
		}
		engine.namespaces = append(engine.namespaces, ns)
		engine.byName[nc.Name] = ns
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, b.logger)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
