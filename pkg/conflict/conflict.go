// Package conflict implements the coordination runtime's Conflict
// Resolution Engine (spec.md §4.6): pairwise dependency conflict
// detection, compatibility scoring, and a pipeline of resolution
// strategies with primary+fallback ordering. It is a faithful port of
// original_source's ConflictResolver (src/lock/conflict_resolver.rs),
// renamed onto Go idiom, with real range-intersection (checked against a
// VersionProvider's available-version pool) standing in for the Rust
// version's "always compatible" Range/Range stub, and
// github.com/Masterminds/semver/v3 standing in for the Rust semver crate.
package conflict

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/agentfabric/coordinator/pkg/clock"
	"github.com/agentfabric/coordinator/pkg/errors"
)

// DependencyType classifies how a scope depends on another dependency.
type DependencyType string

const (
	DependencyRequired    DependencyType = "Required"
	DependencyOptional    DependencyType = "Optional"
	DependencyPeer        DependencyType = "Peer"
	DependencyDevelopment DependencyType = "Development"
	DependencyBuild       DependencyType = "Build"
)

func (t DependencyType) weight() float64 {
	switch t {
	case DependencyRequired:
		return 1.0
	case DependencyPeer:
		return 0.9
	case DependencyOptional:
		return 0.8
	case DependencyDevelopment:
		return 0.7
	case DependencyBuild:
		return 0.6
	default:
		return 0.5
	}
}

// ConstraintKind is the shape of a version constraint (spec.md §3).
type ConstraintKind string

const (
	ConstraintExact      ConstraintKind = "Exact"
	ConstraintRange      ConstraintKind = "Range"
	ConstraintPinned     ConstraintKind = "Pinned"
	ConstraintCaret      ConstraintKind = "Caret"
	ConstraintTilde      ConstraintKind = "Tilde"
	ConstraintWildcard   ConstraintKind = "Wildcard"
	ConstraintPrerelease ConstraintKind = "Prerelease"
	ConstraintDevelopment ConstraintKind = "Development"
	ConstraintLatest     ConstraintKind = "Latest"
	ConstraintEarliest   ConstraintKind = "Earliest"
)

// VersionConstraint is an Enhanced version constraint specification.
type VersionConstraint struct {
	Kind    ConstraintKind
	Version *semver.Version // base version for Exact/Pinned/Caret/Tilde/Wildcard/Prerelease/Development
	Expr    string          // raw range expression for ConstraintRange
}

// rangeExpr returns the semver constraint expression this VersionConstraint
// evaluates against a candidate version.
func (c VersionConstraint) rangeExpr() (string, bool) {
	switch c.Kind {
	case ConstraintRange:
		return c.Expr, true
	case ConstraintCaret:
		return "^" + c.Version.String(), true
	case ConstraintTilde:
		return "~" + c.Version.String(), true
	case ConstraintWildcard:
		return fmt.Sprintf("%d.%d.x", c.Version.Major(), c.Version.Minor()), true
	default:
		return "", false
	}
}

// Satisfies reports whether v satisfies this constraint, mirroring
// original_source's version_satisfies_constraint.
func (c VersionConstraint) Satisfies(v *semver.Version) bool {
	switch c.Kind {
	case ConstraintExact, ConstraintPinned:
		return v.Equal(c.Version)
	case ConstraintLatest, ConstraintEarliest:
		return true
	case ConstraintPrerelease, ConstraintDevelopment:
		return v.Prerelease() == ""
	default:
		expr, ok := c.rangeExpr()
		if !ok {
			return true
		}
		constraints, err := semver.NewConstraint(expr)
		if err != nil {
			return false
		}
		return constraints.Check(v)
	}
}

// Requirement is one scope's requirement on a dependency, gathered into a
// Conflict when more than one scope requires the same dependency name.
type Requirement struct {
	ScopePath          string
	Constraint         VersionConstraint
	DependencyType     DependencyType
	Priority           uint8
	Optional           bool
	OriginalConstraint string
}

// Spec is a single scope's dependency requirement, the unit of input to
// ResolveConflicts.
type Spec struct {
	DependencyName string
	ScopePath      string
	Constraint     VersionConstraint
	DependencyType DependencyType
	Priority       uint8
	Optional       bool
	Alternatives   []string
}

// Type classifies the nature of a detected conflict.
type Type string

const (
	TypeVersionIncompatibility Type = "VersionIncompatibility"
	TypeCircularDependency     Type = "CircularDependency"
)

// Severity ranks how urgently a conflict needs attention.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

func severityRank(s Severity) int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// Strategy is one of the conflict resolution pipeline's member strategies.
type Strategy string

const (
	StrategyLatestCompatible  Strategy = "LatestCompatible"
	StrategyPinnedVersion     Strategy = "PinnedVersion"
	StrategyManualResolution  Strategy = "ManualResolution"
	StrategyAutomaticDetection Strategy = "AutomaticDetection"
	StrategyHistoryTracking   Strategy = "HistoryTracking"
	StrategySmartSelection    Strategy = "SmartSelection"
	StrategyConservative      Strategy = "Conservative"
	StrategyAggressive        Strategy = "Aggressive"
	StrategyHybrid            Strategy = "Hybrid"
)

// ActionType classifies a ResolutionAction.
type ActionType string

const (
	ActionUpgrade           ActionType = "Upgrade"
	ActionDowngrade         ActionType = "Downgrade"
	ActionPin               ActionType = "Pin"
	ActionUnpin             ActionType = "Unpin"
	ActionRemove            ActionType = "Remove"
	ActionAdd               ActionType = "Add"
	ActionModifyConstraint  ActionType = "ModifyConstraint"
	ActionSelectAlternative ActionType = "SelectAlternative"
)

// ResolutionAction records one concrete decision the resolver made.
type ResolutionAction struct {
	ActionType      ActionType
	DependencyName  string
	PreviousVersion *semver.Version
	NewVersion      *semver.Version
	Reason          string
	Timestamp       time.Time
	Strategy        Strategy
	Automatic       bool
}

// Conflict is a single dependency's set of incompatible requirements.
type Conflict struct {
	DependencyName       string
	Requirements         []Requirement
	Type                 Type
	SuggestedResolution  *semver.Version
	Severity             Severity
	Description          string
	AffectedScopes       []string
	Recommendations      []string
	CompatibilityScores  map[string]float64 // keyed by version string
	AutoResolved         bool
	ResolvedAt           time.Time
	ResolutionMethod     Strategy
}

// Stats summarizes a resolution run.
type Stats struct {
	TotalConflicts            int
	AutoResolved              int
	ManualResolutionRequired  int
	UnresolvedConflicts       int
	ResolutionAttempts        int
	VersionUpgrades           int
	VersionDowngrades         int
	PinnedVersionsEnforced    int
	CompatibilityChecks       int
}

// PerformanceMetrics breaks total resolution time down by phase
// (SPEC_FULL.md's SUPPLEMENTED FEATURES item 4).
type PerformanceMetrics struct {
	TotalTime               time.Duration
	DetectionTime           time.Duration
	StrategyExecutionTime   time.Duration
	CompatibilityScoringTime time.Duration
	UserInteractionTime     time.Duration
	ParallelOperations      int
	CacheOperations         int
}

// HistoryEntry is one past resolution, consulted by StrategyHistoryTracking.
type HistoryEntry struct {
	Timestamp       time.Time
	DependencyName  string
	ConflictType    Type
	Strategy        Strategy
	PreviousVersion *semver.Version
	NewVersion      *semver.Version
	Successful      bool
	Notes           string
	ResolvedBy      string
}

// Result is the outcome of ResolveConflicts.
type Result struct {
	ResolvedDependencies map[string]*semver.Version
	DetectedConflicts    []Conflict
	ResolutionActions    []ResolutionAction
	Stats                Stats
	Successful           bool
	Warnings             []string
	Recommendations      []string
	PerformanceMetrics   PerformanceMetrics
}

// VersionProvider supplies the set of known versions for a dependency
// name. internal/versionregistry is the demo collaborator that implements
// this against a deterministic catalog; tests use small fakes.
type VersionProvider interface {
	AvailableVersions(dependencyName string) []*semver.Version
}

// Config tunes the resolver's strategy pipeline and behavior.
type Config struct {
	PrimaryStrategy        Strategy
	FallbackStrategies     []Strategy
	EnableAutoDetection    bool
	TrackHistory           bool
	MaxAttempts            int
	PreferStable           bool
	StrictPinning          bool
	CompatibilityThreshold float64
	Timeout                time.Duration
}

// DefaultConfig mirrors original_source's ConflictResolutionConfig::default.
func DefaultConfig() Config {
	return Config{
		PrimaryStrategy:        StrategyLatestCompatible,
		FallbackStrategies:     []Strategy{StrategyConservative, StrategyManualResolution},
		EnableAutoDetection:    true,
		TrackHistory:           true,
		MaxAttempts:            3,
		PreferStable:           true,
		StrictPinning:          false,
		CompatibilityThreshold: 0.8,
		Timeout:                30 * time.Second,
	}
}

// Resolver is the main conflict resolution engine.
type Resolver struct {
	mu       sync.Mutex
	config   Config
	clock    clock.Clock
	provider VersionProvider
	history  []HistoryEntry

	compatibilityCache map[string]map[string]float64
	versionCache       map[string][]*semver.Version
}

// New returns a Resolver with DefaultConfig.
func New(clk clock.Clock, provider VersionProvider) *Resolver {
	return NewWithConfig(clk, provider, DefaultConfig())
}

// NewWithConfig returns a Resolver with a caller-supplied Config.
func NewWithConfig(clk clock.Clock, provider VersionProvider, cfg Config) *Resolver {
	return &Resolver{
		config:             cfg,
		clock:              clk,
		provider:           provider,
		compatibilityCache: make(map[string]map[string]float64),
		versionCache:       make(map[string][]*semver.Version),
	}
}

// ResolveConflicts detects conflicts across specs, then applies the
// primary strategy, falling back through config.FallbackStrategies in
// order until one reports success.
func (r *Resolver) ResolveConflicts(specs []Spec) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.clock.Now()
	result := &Result{
		ResolvedDependencies: make(map[string]*semver.Version),
	}

	detectStart := r.clock.Now()
	conflicts, err := r.detectConflicts(specs)
	if err != nil {
		return nil, err
	}
	result.DetectedConflicts = conflicts
	result.Stats.TotalConflicts = len(conflicts)
	result.PerformanceMetrics.DetectionTime = r.clock.Since(detectStart)

	if len(conflicts) == 0 {
		result.Successful = true
		result.PerformanceMetrics.TotalTime = r.clock.Since(start)
		return result, nil
	}

	strategyStart := r.clock.Now()
	r.applyStrategy(result, r.config.PrimaryStrategy)
	result.PerformanceMetrics.StrategyExecutionTime += r.clock.Since(strategyStart)

	for _, fallback := range r.config.FallbackStrategies {
		if result.Successful {
			break
		}
		fbStart := r.clock.Now()
		r.applyStrategy(result, fallback)
		result.PerformanceMetrics.StrategyExecutionTime += r.clock.Since(fbStart)
	}

	result.PerformanceMetrics.TotalTime = r.clock.Since(start)
	r.generateRecommendations(result)
	return result, nil
}

func (r *Resolver) availableVersions(name string) []*semver.Version {
	if cached, ok := r.versionCache[name]; ok {
		return cached
	}
	var versions []*semver.Version
	if r.provider != nil {
		versions = r.provider.AvailableVersions(name)
	}
	r.versionCache[name] = versions
	return versions
}

func (r *Resolver) detectConflicts(specs []Spec) ([]Conflict, error) {
	groups := make(map[string][]Spec)
	var order []string
	for _, s := range specs {
		if _, seen := groups[s.DependencyName]; !seen {
			order = append(order, s.DependencyName)
		}
		groups[s.DependencyName] = append(groups[s.DependencyName], s)
	}
	sort.Strings(order)

	var conflicts []Conflict
	for _, name := range order {
		deps := groups[name]
		if len(deps) <= 1 {
			continue
		}
		if c := r.checkDependencyConflicts(name, deps); c != nil {
			conflicts = append(conflicts, *c)
		}
	}

	for _, cycle := range r.detectCircularDependencies(specs) {
		conflicts = append(conflicts, Conflict{
			DependencyName: joinCycle(cycle),
			Type:           TypeCircularDependency,
			Severity:       SeverityCritical,
			Description:    fmt.Sprintf("circular dependency detected: %s", joinCycle(cycle)),
			AffectedScopes: cycle,
			Recommendations: []string{
				"Remove one of the circular dependencies",
				"Restructure dependencies to break the cycle",
			},
		})
	}

	return conflicts, nil
}

func joinCycle(cycle []string) string {
	out := ""
	for i, s := range cycle {
		if i > 0 {
			out += " -> "
		}
		out += s
	}
	return out
}

func (r *Resolver) checkDependencyConflicts(name string, specs []Spec) *Conflict {
	requirements := make([]Requirement, 0, len(specs))
	scopes := make([]string, 0, len(specs))
	for _, s := range specs {
		requirements = append(requirements, Requirement{
			ScopePath:      s.ScopePath,
			Constraint:     s.Constraint,
			DependencyType: s.DependencyType,
			Priority:       s.Priority,
			Optional:       s.Optional,
		})
		scopes = append(scopes, s.ScopePath)
	}

	if !r.hasVersionConflicts(name, requirements) {
		return nil
	}

	scores := r.calculateCompatibilityScores(name, requirements)
	suggested := suggestResolution(scores)

	return &Conflict{
		DependencyName:      name,
		Requirements:        requirements,
		Type:                TypeVersionIncompatibility,
		SuggestedResolution: suggested,
		Severity:            calculateSeverity(requirements),
		Description:         fmt.Sprintf("version conflict detected for dependency %q", name),
		AffectedScopes:      scopes,
		Recommendations:     generateConflictRecommendations(requirements),
		CompatibilityScores: scores,
	}
}

func (r *Resolver) hasVersionConflicts(name string, requirements []Requirement) bool {
	if len(requirements) <= 1 {
		return false
	}
	for i := 0; i < len(requirements); i++ {
		for j := i + 1; j < len(requirements); j++ {
			if !r.constraintsCompatible(name, requirements[i].Constraint, requirements[j].Constraint) {
				return true
			}
		}
	}
	return false
}

// constraintsCompatible decides whether two constraints can both be
// satisfied. Range/Range compatibility is checked against the
// dependency's actual available-version pool (a genuine intersection
// test) rather than assumed true, per this project's resolution of the
// range-intersection open question.
func (r *Resolver) constraintsCompatible(name string, a, b VersionConstraint) bool {
	switch {
	case a.Kind == ConstraintExact && b.Kind == ConstraintExact:
		return a.Version.Equal(b.Version)
	case a.Kind == ConstraintPinned && b.Kind == ConstraintPinned:
		return a.Version.Equal(b.Version)
	case a.Kind == ConstraintPinned || b.Kind == ConstraintPinned:
		// A pin against any non-pinned constraint is reported as a conflict.
		return false
	case a.Kind == ConstraintExact && isRangeLike(b.Kind):
		return b.Satisfies(a.Version)
	case isRangeLike(a.Kind) && b.Kind == ConstraintExact:
		return a.Satisfies(b.Version)
	case isRangeLike(a.Kind) && isRangeLike(b.Kind):
		for _, v := range r.availableVersions(name) {
			if a.Satisfies(v) && b.Satisfies(v) {
				return true
			}
		}
		return len(r.availableVersions(name)) == 0
	default:
		return true
	}
}

func isRangeLike(k ConstraintKind) bool {
	switch k {
	case ConstraintRange, ConstraintCaret, ConstraintTilde, ConstraintWildcard:
		return true
	default:
		return false
	}
}

func (r *Resolver) calculateCompatibilityScores(name string, requirements []Requirement) map[string]float64 {
	if cached, ok := r.compatibilityCache[name]; ok {
		return cached
	}

	scores := make(map[string]float64)
	for _, v := range r.availableVersions(name) {
		total := 0.0
		valid := 0
		for _, req := range requirements {
			if req.Constraint.Satisfies(v) {
				total += r.requirementScore(v, req)
				valid++
			}
		}
		if valid > 0 {
			scores[v.String()] = total / float64(valid)
		}
	}

	r.compatibilityCache[name] = scores
	return scores
}

func (r *Resolver) requirementScore(v *semver.Version, req Requirement) float64 {
	score := float64(req.Priority) / 10.0
	score *= req.DependencyType.weight()
	if r.config.PreferStable && v.Prerelease() != "" {
		score *= 0.5
	}
	return score
}

func suggestResolution(scores map[string]float64) *semver.Version {
	if len(scores) == 0 {
		return nil
	}
	bestStr, bestScore := "", -1.0
	for vs, score := range scores {
		if score > bestScore {
			bestScore = score
			bestStr = vs
		}
	}
	v, err := semver.NewVersion(bestStr)
	if err != nil {
		return nil
	}
	return v
}

func calculateSeverity(requirements []Requirement) Severity {
	hasRequired := false
	hasHighPriority := false
	for _, r := range requirements {
		if r.DependencyType == DependencyRequired {
			hasRequired = true
		}
		if r.Priority >= 8 {
			hasHighPriority = true
		}
	}
	switch {
	case hasRequired && hasHighPriority:
		return SeverityCritical
	case hasRequired:
		return SeverityHigh
	case hasHighPriority:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func generateConflictRecommendations(requirements []Requirement) []string {
	var recs []string
	pinned := 0
	ranges := 0
	for _, r := range requirements {
		if r.Constraint.Kind == ConstraintPinned {
			pinned++
		}
		if r.Constraint.Kind == ConstraintRange {
			ranges++
		}
	}
	if pinned > 1 {
		recs = append(recs, "Multiple pinned versions detected. Consider using a single pinned version.")
	}
	if ranges > 1 {
		recs = append(recs, "Multiple version ranges detected. Consider consolidating to a single range.")
	}
	recs = append(recs,
		"Review dependency requirements and consider standardizing version constraints.",
		"Use semantic versioning to ensure compatibility.",
	)
	return recs
}

func (r *Resolver) detectCircularDependencies(specs []Spec) [][]string {
	graph := make(map[string][]string)
	for _, s := range specs {
		graph[s.ScopePath] = append(graph[s.ScopePath], s.DependencyName)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(graph))
	var cycles [][]string

	var path []string
	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		path = append(path, node)
		for _, next := range graph[node] {
			switch color[next] {
			case gray:
				return true
			case white:
				if dfs(next) {
					return true
				}
			}
		}
		color[node] = black
		path = path[:len(path)-1]
		return false
	}

	var names []string
	for node := range graph {
		names = append(names, node)
	}
	sort.Strings(names)

	for _, node := range names {
		if color[node] == white {
			path = nil
			if dfs(node) {
				cycles = append(cycles, append([]string(nil), path...))
			}
		}
	}
	return cycles
}

func (r *Resolver) applyStrategy(result *Result, strategy Strategy) {
	result.Stats.ResolutionAttempts++
	switch strategy {
	case StrategyLatestCompatible:
		r.resolveLatestCompatible(result)
	case StrategyPinnedVersion:
		r.resolvePinnedVersion(result)
	case StrategyManualResolution:
		r.resolveManual(result)
	case StrategyAutomaticDetection:
		r.resolveAutomaticDetection(result)
	case StrategyHistoryTracking:
		r.resolveHistoryTracking(result)
	case StrategySmartSelection:
		r.resolveSmartSelection(result)
	case StrategyConservative:
		r.resolveConservative(result)
	case StrategyAggressive:
		r.resolveAggressive(result)
	case StrategyHybrid:
		r.resolveHybrid(result)
	}
}

func (r *Resolver) recordAction(result *Result, conflict *Conflict, strategy Strategy, actionType ActionType, newVersion *semver.Version, reason string) {
	result.ResolutionActions = append(result.ResolutionActions, ResolutionAction{
		ActionType:     actionType,
		DependencyName: conflict.DependencyName,
		NewVersion:     newVersion,
		Reason:         reason,
		Timestamp:      r.clock.Now(),
		Strategy:       strategy,
		Automatic:      true,
	})
	conflict.AutoResolved = true
	conflict.ResolvedAt = r.clock.Now()
	conflict.ResolutionMethod = strategy
	result.ResolvedDependencies[conflict.DependencyName] = newVersion
	result.Stats.AutoResolved++

	if r.config.TrackHistory {
		r.history = append(r.history, HistoryEntry{
			Timestamp:      r.clock.Now(),
			DependencyName: conflict.DependencyName,
			ConflictType:   conflict.Type,
			Strategy:       strategy,
			NewVersion:     newVersion,
			Successful:     true,
		})
	}
}

func (r *Resolver) resolveLatestCompatible(result *Result) {
	for i := range result.DetectedConflicts {
		conflict := &result.DetectedConflicts[i]
		if conflict.AutoResolved || conflict.SuggestedResolution == nil {
			continue
		}
		var compatible []*semver.Version
		for _, v := range r.availableVersions(conflict.DependencyName) {
			ok := true
			for _, req := range conflict.Requirements {
				if !req.Constraint.Satisfies(v) {
					ok = false
					break
				}
			}
			if ok {
				compatible = append(compatible, v)
			}
		}
		if len(compatible) == 0 {
			result.Stats.UnresolvedConflicts++
			continue
		}
		best := maxVersion(compatible)
		r.recordAction(result, conflict, StrategyLatestCompatible, ActionUpgrade, best, "latest compatible version selected")
		result.Stats.VersionUpgrades++
	}
	result.Successful = allResolved(result.DetectedConflicts)
}

func (r *Resolver) resolvePinnedVersion(result *Result) {
	for i := range result.DetectedConflicts {
		conflict := &result.DetectedConflicts[i]
		if conflict.AutoResolved {
			continue
		}
		found := false
		for _, req := range conflict.Requirements {
			if req.Constraint.Kind == ConstraintPinned {
				r.recordAction(result, conflict, StrategyPinnedVersion, ActionPin, req.Constraint.Version, "pinned version enforced")
				result.Stats.PinnedVersionsEnforced++
				found = true
				break
			}
		}
		if !found {
			result.Stats.UnresolvedConflicts++
		}
	}
	result.Successful = allResolved(result.DetectedConflicts)
}

func (r *Resolver) resolveManual(result *Result) {
	for i := range result.DetectedConflicts {
		conflict := &result.DetectedConflicts[i]
		if conflict.AutoResolved {
			continue
		}
		result.Stats.ManualResolutionRequired++
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"manual resolution required for dependency %q: %s", conflict.DependencyName, conflict.Description))
	}
	result.Successful = false
}

func (r *Resolver) resolveAutomaticDetection(result *Result) {
	for i := range result.DetectedConflicts {
		conflict := &result.DetectedConflicts[i]
		result.Warnings = append(result.Warnings, r.conflictReport(conflict))
		result.Stats.UnresolvedConflicts++
	}
	result.Successful = false
}

func (r *Resolver) resolveHistoryTracking(result *Result) {
	for i := range result.DetectedConflicts {
		conflict := &result.DetectedConflicts[i]
		if conflict.AutoResolved {
			continue
		}
		if entry, ok := r.findHistoricalResolution(conflict.DependencyName); ok {
			r.recordAction(result, conflict, StrategyHistoryTracking, ActionUpgrade, entry.NewVersion,
				fmt.Sprintf("historical resolution applied: %s", entry.Notes))
		} else {
			result.Stats.UnresolvedConflicts++
		}
	}
	result.Successful = allResolved(result.DetectedConflicts)
}

func (r *Resolver) resolveSmartSelection(result *Result) {
	for i := range result.DetectedConflicts {
		conflict := &result.DetectedConflicts[i]
		if conflict.AutoResolved {
			continue
		}
		if best := r.selectBestByCompatibility(conflict); best != nil {
			r.recordAction(result, conflict, StrategySmartSelection, ActionUpgrade, best, "smart selection based on compatibility scores")
		} else {
			result.Stats.UnresolvedConflicts++
		}
	}
	result.Successful = allResolved(result.DetectedConflicts)
}

func (r *Resolver) resolveConservative(result *Result) {
	for i := range result.DetectedConflicts {
		conflict := &result.DetectedConflicts[i]
		if conflict.AutoResolved {
			continue
		}
		var stable []*semver.Version
		for _, v := range r.availableVersions(conflict.DependencyName) {
			if v.Prerelease() == "" && v.Metadata() == "" {
				stable = append(stable, v)
			}
		}
		if len(stable) == 0 {
			result.Stats.UnresolvedConflicts++
			continue
		}
		best := maxVersion(stable)
		r.recordAction(result, conflict, StrategyConservative, ActionUpgrade, best, "conservative version selection (stable, tested)")
	}
	result.Successful = allResolved(result.DetectedConflicts)
}

func (r *Resolver) resolveAggressive(result *Result) {
	for i := range result.DetectedConflicts {
		conflict := &result.DetectedConflicts[i]
		if conflict.AutoResolved {
			continue
		}
		versions := r.availableVersions(conflict.DependencyName)
		if len(versions) == 0 {
			result.Stats.UnresolvedConflicts++
			continue
		}
		best := maxVersion(versions)
		r.recordAction(result, conflict, StrategyAggressive, ActionUpgrade, best, "aggressive version selection (latest features)")
		result.Stats.VersionUpgrades++
	}
	result.Successful = allResolved(result.DetectedConflicts)
}

func (r *Resolver) resolveHybrid(result *Result) {
	for _, strategy := range []Strategy{StrategyLatestCompatible, StrategyConservative, StrategySmartSelection} {
		if result.Successful {
			break
		}
		r.applyStrategy(result, strategy)
	}
}

func (r *Resolver) conflictReport(conflict *Conflict) string {
	report := fmt.Sprintf("CONFLICT REPORT for %q:\nType: %s\nSeverity: %s\nDescription: %s\nRequirements:\n",
		conflict.DependencyName, conflict.Type, conflict.Severity, conflict.Description)
	for _, req := range conflict.Requirements {
		report += fmt.Sprintf("  - %s: %s (priority: %d)\n", req.ScopePath, req.Constraint.Kind, req.Priority)
	}
	if conflict.SuggestedResolution != nil {
		report += fmt.Sprintf("Suggested resolution: %s\n", conflict.SuggestedResolution)
	}
	return report
}

func (r *Resolver) findHistoricalResolution(name string) (HistoryEntry, bool) {
	var best HistoryEntry
	found := false
	for _, entry := range r.history {
		if entry.DependencyName != name || !entry.Successful {
			continue
		}
		if !found || entry.Timestamp.After(best.Timestamp) {
			best = entry
			found = true
		}
	}
	return best, found
}

func (r *Resolver) selectBestByCompatibility(conflict *Conflict) *semver.Version {
	if len(conflict.CompatibilityScores) == 0 {
		return nil
	}
	bestStr, bestScore := "", -1.0
	for vs, score := range conflict.CompatibilityScores {
		if score < r.config.CompatibilityThreshold {
			continue
		}
		if score > bestScore {
			bestScore = score
			bestStr = vs
		}
	}
	if bestStr == "" {
		return nil
	}
	v, err := semver.NewVersion(bestStr)
	if err != nil {
		return nil
	}
	return v
}

func (r *Resolver) generateRecommendations(result *Result) {
	if result.Stats.UnresolvedConflicts > 0 {
		result.Recommendations = append(result.Recommendations,
			"Some conflicts could not be automatically resolved. Consider manual intervention.")
	}
	if result.Stats.VersionUpgrades > 0 {
		result.Recommendations = append(result.Recommendations,
			"Multiple version upgrades were performed. Test thoroughly to ensure compatibility.")
	}
	if result.Stats.PinnedVersionsEnforced > 0 {
		result.Recommendations = append(result.Recommendations,
			"Pinned versions were enforced. Consider reviewing version constraints.")
	}
	result.Recommendations = append(result.Recommendations,
		"Regular dependency updates can help prevent future conflicts.")
}

// ClearCaches drops the compatibility and version caches.
func (r *Resolver) ClearCaches() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compatibilityCache = make(map[string]map[string]float64)
	r.versionCache = make(map[string][]*semver.Version)
}

// History returns a copy of the resolution history.
func (r *Resolver) History() []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HistoryEntry, len(r.history))
	copy(out, r.history)
	return out
}

func allResolved(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if !c.AutoResolved {
			return false
		}
	}
	return true
}

func maxVersion(versions []*semver.Version) *semver.Version {
	best := versions[0]
	for _, v := range versions[1:] {
		if v.GreaterThan(best) {
			best = v
		}
	}
	return best
}

// InvalidConstraintError is returned by ParseRangeConstraint when expr
// doesn't parse as a semver range.
func InvalidConstraintError(expr string, cause error) error {
	return errors.NewError(errors.KindInvalidContent).
		WithMessagef("invalid version constraint %q", expr).
		WithCause(cause).Build()
}

// ParseRangeConstraint validates expr as a semver range and wraps it as a
// ConstraintRange VersionConstraint.
func ParseRangeConstraint(expr string) (VersionConstraint, error) {
	if _, err := semver.NewConstraint(expr); err != nil {
		return VersionConstraint{}, InvalidConstraintError(expr, err)
	}
	return VersionConstraint{Kind: ConstraintRange, Expr: expr}, nil
}
