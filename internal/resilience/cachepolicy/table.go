// Package cachepolicy derives per-request HTTP cache directives from the
// requested resource class, the configured strategy profile and live network
// state.
package cachepolicy

import "time"

// ResourceClass is the coarse category of requested data. Call sites tag
// each request explicitly instead of relying on URL pattern matching.
type ResourceClass string

const (
	ClassRecipes  ResourceClass = "recipes"
	ClassTaxonomy ResourceClass = "taxonomy"
	ClassUser     ResourceClass = "user"
	ClassOther    ResourceClass = "other"
)

// Strategy is one of four named cache aggressiveness presets.
type Strategy string

const (
	StrategyAggressive   Strategy = "aggressive"
	StrategyBalanced     Strategy = "balanced"
	StrategyFresh        Strategy = "fresh"
	StrategyOfflineFirst Strategy = "offline_first"
)

// CacheConfig is the per-request cache directive set, computed from the
// table below and never persisted.
type CacheConfig struct {
	MaxAgeOnline      time.Duration
	MaxStaleOffline   time.Duration
	ForceCacheOffline bool
}

type tableKey struct {
	Class    ResourceClass
	Strategy Strategy
}

// The full (resource class × strategy) matrix. User/auth entries never set
// ForceCacheOffline: stale identity data must not mask a re-login.
var policyTable = map[tableKey]CacheConfig{
	{ClassRecipes, StrategyAggressive}:   {10 * time.Minute, 7 * 24 * time.Hour, true},
	{ClassRecipes, StrategyBalanced}:     {2 * time.Minute, 48 * time.Hour, true},
	{ClassRecipes, StrategyFresh}:        {30 * time.Second, time.Hour, false},
	{ClassRecipes, StrategyOfflineFirst}: {5 * time.Minute, 30 * 24 * time.Hour, true},

	{ClassTaxonomy, StrategyAggressive}:   {30 * time.Minute, 30 * 24 * time.Hour, true},
	{ClassTaxonomy, StrategyBalanced}:     {10 * time.Minute, 7 * 24 * time.Hour, true},
	{ClassTaxonomy, StrategyFresh}:        {time.Minute, 6 * time.Hour, false},
	{ClassTaxonomy, StrategyOfflineFirst}: {15 * time.Minute, 30 * 24 * time.Hour, true},

	{ClassUser, StrategyAggressive}:   {5 * time.Minute, time.Hour, false},
	{ClassUser, StrategyBalanced}:     {time.Minute, 30 * time.Minute, false},
	{ClassUser, StrategyFresh}:        {5 * time.Second, 5 * time.Minute, false},
	{ClassUser, StrategyOfflineFirst}: {2 * time.Minute, 24 * time.Hour, false},

	{ClassOther, StrategyAggressive}:   {10 * time.Minute, 24 * time.Hour, true},
	{ClassOther, StrategyBalanced}:     {5 * time.Minute, 24 * time.Hour, true},
	{ClassOther, StrategyFresh}:        {30 * time.Second, time.Hour, false},
	{ClassOther, StrategyOfflineFirst}: {10 * time.Minute, 14 * 24 * time.Hour, true},
}

// Lookup returns the table entry for a (class, strategy) pair. Unknown pairs
// fall back to the balanced/other entry.
func Lookup(class ResourceClass, strategy Strategy) CacheConfig {
	if cfg, ok := policyTable[tableKey{class, strategy}]; ok {
		return cfg
	}
	return policyTable[tableKey{ClassOther, StrategyBalanced}]
}
