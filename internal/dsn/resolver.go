// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package dsn

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dsnguard/dsnguard/internal/audit"
	"github.com/dsnguard/dsnguard/internal/observability"
)

// Default canonicalization values.
const (
	DefaultSSLMode            = "prefer"
	DefaultTargetSessionAttrs = "read-write"
)

var tracer = otel.Tracer("github.com/dsnguard/dsnguard/internal/dsn")

// Config names the environment variables and connection defaults a Resolver
// works with. It is fixed for the lifetime of the Resolver.
type Config struct {
	CanonicalVar   string
	FallbackVar    string
	AllowRemoteVar string

	DefaultApp         string
	SSLMode            string
	TargetSessionAttrs string

	LocalHosts []string
}

// DefaultConfig returns the stock configuration: DATABASE_URL over
// POSTGRES_DSN, ALLOW_REMOTE_DSN as the override.
func DefaultConfig() Config {
	return Config{
		CanonicalVar:       DefaultCanonicalVar,
		FallbackVar:        DefaultFallbackVar,
		AllowRemoteVar:     DefaultAllowRemoteVar,
		SSLMode:            DefaultSSLMode,
		TargetSessionAttrs: DefaultTargetSessionAttrs,
		LocalHosts:         DefaultLocalHosts,
	}
}

// Source identifies which variable supplied the chosen DSN.
type Source string

// DSN sources.
const (
	SourceNone     Source = "none"
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// Options are the per-call resolution settings.
type Options struct {
	// Strict turns missing, conflicting and remote DSNs into errors.
	Strict bool
	// Role and App make up the application_name tag (app:role).
	Role string
	App  string
	// AllowRemote permits a non-local host, as ALLOW_REMOTE_DSN does.
	AllowRemote bool
}

// Decision is the outcome of one resolution.
type Decision struct {
	// DSN is the canonicalized connection string, empty when nothing is set.
	DSN      string `json:"-" yaml:"-"`
	Redacted string `json:"dsn" yaml:"dsn"`
	Source   Source `json:"source" yaml:"source"`
	Variable string `json:"variable,omitempty" yaml:"variable,omitempty"`
	Host     string `json:"host" yaml:"host"`
	Database string `json:"database" yaml:"database"`
	Mismatch bool   `json:"mismatch" yaml:"mismatch"`
	Remote   bool   `json:"remote" yaml:"remote"`

	ApplicationName string `json:"application_name,omitempty" yaml:"application_name,omitempty"`

	Primary  *Target `json:"primary,omitempty" yaml:"primary,omitempty"`
	Fallback *Target `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Configured reports whether a DSN was chosen.
func (d Decision) Configured() bool { return d.Source != SourceNone && d.DSN != "" }

// Resolver chooses, validates, tags and audits a DSN.
type Resolver struct {
	cfg     Config
	lookup  LookupFunc
	hosts   *HostMatcher
	sink    audit.Sink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookup replaces os.LookupEnv as the environment source. A nil lookup
// keeps the default.
func WithLookup(lookup LookupFunc) Option {
	return func(r *Resolver) {
		if lookup != nil {
			r.lookup = lookup
		}
	}
}

// WithSink sets where audit records go. The default discards them; a nil
// sink keeps the default.
func WithSink(s audit.Sink) Option {
	return func(r *Resolver) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithLogger sets the logger for warnings. A nil logger keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the resolution counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver. Empty variable names in cfg fall back to
// the defaults.
func NewResolver(cfg Config, opts ...Option) (*Resolver, error) {
	def := DefaultConfig()
	if cfg.CanonicalVar == "" {
		cfg.CanonicalVar = def.CanonicalVar
	}
	if cfg.FallbackVar == "" {
		cfg.FallbackVar = def.FallbackVar
	}
	if cfg.AllowRemoteVar == "" {
		cfg.AllowRemoteVar = def.AllowRemoteVar
	}

	hosts, err := NewHostMatcher(cfg.LocalHosts)
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		cfg:    cfg,
		lookup: os.LookupEnv,
		hosts:  hosts,
		sink:   audit.Discard,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ResolveDSN resolves a DSN from the process environment with the default
// configuration, auditing to metrics/dsn_audit.jsonl. It returns "" with a nil
// error when nothing is configured and opts.Strict is false.
func ResolveDSN(ctx context.Context, opts Options) (string, error) {
	r, err := NewResolver(DefaultConfig(),
		WithSink(audit.NewFileSink(audit.DefaultAppendPath, audit.ModeAppend)),
	)
	if err != nil {
		return "", err
	}
	return r.ResolveDSN(ctx, opts)
}

// ResolveDSN is Resolve reduced to the connection string.
func (r *Resolver) ResolveDSN(ctx context.Context, opts Options) (string, error) {
	d, err := r.Resolve(ctx, opts)
	if err != nil {
		return "", err
	}
	return d.DSN, nil
}

// Resolve picks the DSN to use.
//
// The canonical variable wins over the fallback. When both are set and point
// at different (host, database) pairs the decision is flagged as a mismatch,
// and a non-local host without an override is flagged as remote; in strict
// mode either is an error, as is having no DSN at all. Every call leaves
// exactly one audit record.
func (r *Resolver) Resolve(ctx context.Context, opts Options) (Decision, error) {
	ctx, span := tracer.Start(ctx, "dsn.Resolve")
	defer span.End()

	in := Collect(r.lookup, r.cfg.CanonicalVar, r.cfg.FallbackVar)
	rec := audit.Record{
		Role:   opts.Role,
		App:    r.appName(opts),
		Strict: opts.Strict,
	}

	d, err := r.decide(ctx, in, opts)

	rec.Src = d.Variable
	if rec.Src == "" {
		rec.Src = string(SourceNone)
	}
	rec.Source = string(d.Source)
	rec.DSN = d.Redacted
	rec.Host = d.Host
	rec.Database = d.Database
	rec.Mismatch = d.Mismatch
	rec.Remote = d.Remote
	rec.ApplicationName = d.ApplicationName
	rec.Outcome = outcomeOf(d, err)
	if kind, ok := KindOf(err); ok {
		rec.ErrorCode = string(kind)
	}

	r.sink.Record(ctx, rec)
	r.metrics.RecordResolution(string(d.Source), string(rec.Outcome))

	span.SetAttributes(
		attribute.String("dsn.source", string(d.Source)),
		attribute.String("dsn.host", d.Host),
		attribute.String("dsn.database", d.Database),
		attribute.Bool("dsn.mismatch", d.Mismatch),
		attribute.Bool("dsn.remote", d.Remote),
	)
	if err != nil {
		span.SetStatus(codes.Error, string(rec.Outcome))
		return Decision{Source: d.Source, Variable: d.Variable, Mismatch: d.Mismatch, Remote: d.Remote}, err
	}
	return d, nil
}

func (r *Resolver) decide(ctx context.Context, in Inputs, opts Options) (Decision, error) {
	d := Decision{Source: SourceNone}

	switch {
	case in.Canonical != "":
		d.Source, d.Variable = SourcePrimary, r.cfg.CanonicalVar
	case in.Fallback != "":
		d.Source, d.Variable = SourceFallback, r.cfg.FallbackVar
	default:
		if opts.Strict {
			return d, errNoDSNConfigured(r.cfg.CanonicalVar, r.cfg.FallbackVar)
		}
		r.logger.WarnContext(ctx, "no database DSN configured",
			"canonical_var", r.cfg.CanonicalVar,
			"fallback_var", r.cfg.FallbackVar,
		)
		return d, nil
	}

	raw := in.Canonical
	if d.Source == SourceFallback {
		raw = in.Fallback
	}
	parsed, parsedOK := Parse(raw)
	d.Host, d.Database = parsed.DialHost(), parsed.Database
	d.Redacted = Redact(raw)

	if in.Canonical != "" && in.Fallback != "" {
		primary, fallback, mismatch := compareTargets(in.Canonical, in.Fallback)
		d.Primary, d.Fallback, d.Mismatch = &primary, &fallback, mismatch
		if mismatch {
			if opts.Strict {
				return d, errDSNMismatch(r.cfg.CanonicalVar, r.cfg.FallbackVar, primary, fallback)
			}
			r.logger.WarnContext(ctx, "DSN variables disagree; using canonical",
				"canonical_var", r.cfg.CanonicalVar,
				"fallback_var", r.cfg.FallbackVar,
				"primary", primary.String(),
				"fallback", fallback.String(),
			)
		}
	}

	if !parsedOK || !r.isLocal(parsed) {
		if !opts.AllowRemote && !r.remoteAllowedByEnv() {
			d.Remote = true
			if opts.Strict {
				return d, errRemoteDSNRejected(d.Variable, d.Host, r.cfg.AllowRemoteVar)
			}
			r.logger.WarnContext(ctx, "remote DSN in use without override",
				"variable", d.Variable,
				"host", d.Host,
				"allow_remote_var", r.cfg.AllowRemoteVar,
			)
		}
	}

	d.ApplicationName = ApplicationName(r.appName(opts), opts.Role)
	d.DSN = Canonicalize(raw, r.defaults(d.ApplicationName))
	d.Redacted = Redact(d.DSN)
	return d, nil
}

// compareTargets reports whether two DSNs point at different databases.
// When either side is unparsable the raw strings are compared instead.
func compareTargets(canonical, fallback string) (primary, secondary Target, mismatch bool) {
	pc, okc := Parse(canonical)
	pf, okf := Parse(fallback)
	primary, secondary = pc.Target(), pf.Target()
	if !okc || !okf {
		return primary, secondary, canonical != fallback
	}
	return primary, secondary, primary != secondary
}

// isLocal requires both host and hostaddr to be local; libpq dials hostaddr
// when it is set and uses host for authentication.
func (r *Resolver) isLocal(p Parsed) bool {
	if !r.hosts.IsLocal(p.Host) {
		return false
	}
	return p.HostAddr == "" || r.hosts.IsLocal(p.HostAddr)
}

func (r *Resolver) remoteAllowedByEnv() bool {
	if r.cfg.AllowRemoteVar == "" {
		return false
	}
	v, _ := r.lookup(r.cfg.AllowRemoteVar)
	return truthy(v)
}

func (r *Resolver) appName(opts Options) string {
	if opts.App != "" {
		return opts.App
	}
	return r.cfg.DefaultApp
}

func (r *Resolver) defaults(applicationName string) []Param {
	return []Param{
		{Key: ParamApplicationName, Value: applicationName},
		{Key: ParamSSLMode, Value: r.cfg.SSLMode},
		{Key: ParamTargetSessionAttrs, Value: r.cfg.TargetSessionAttrs},
	}
}

func outcomeOf(d Decision, err error) audit.Outcome {
	kind, _ := KindOf(err)
	switch {
	case kind == KindNoDSNConfigured:
		return audit.OutcomeNoDSN
	case kind == KindDSNMismatch:
		return audit.OutcomeMismatch
	case kind == KindRemoteDSNRejected:
		return audit.OutcomeRemoteRejected
	case d.Source == SourceNone:
		return audit.OutcomeUnset
	default:
		return audit.OutcomeOK
	}
}
