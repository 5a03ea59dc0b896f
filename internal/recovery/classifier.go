package recovery

import "github.com/dshills/embedgate/internal/degrade"

// ImpactScope is how much of the system a failure touches.
type ImpactScope string

const (
	ScopeSystem    ImpactScope = "system"
	ScopeSubsystem ImpactScope = "subsystem"
	ScopeFeature   ImpactScope = "feature"
	ScopeOperation ImpactScope = "operation"
)

// NotificationLevel is how loudly the failure should be surfaced.
type NotificationLevel string

const (
	NotifyNone    NotificationLevel = "none"
	NotifyInfo    NotificationLevel = "info"
	NotifyWarning NotificationLevel = "warning"
	NotifyAlert   NotificationLevel = "alert"
)

// Strategy names a recovery action. Actions are registered on the
// Service by the wiring code; a strategy without a registered action is
// reported, never invented.
type Strategy string

const (
	StrategyReconnect         Strategy = "reconnect"
	StrategyRebuildIndex      Strategy = "rebuild_index"
	StrategyClearCacheRetry   Strategy = "clear_cache_and_retry"
	StrategyReduceBatchSize   Strategy = "reduce_batch_size"
	StrategyRestartService    Strategy = "restart_external_service"
	StrategyRotateCredentials Strategy = "rotate_credentials"
	StrategyOpenCircuit       Strategy = "open_circuit"
	StrategyScaleResources    Strategy = "scale_resources"
	StrategyFallbackMode      Strategy = "enter_fallback_mode"
	StrategyMaintenance       Strategy = "emergency_maintenance"
)

// Classification is the handling policy for one failure kind.
type Classification struct {
	Severity           degrade.Severity
	Scope              ImpactScope
	Strategy           Strategy
	Notification       NotificationLevel
	EscalationRequired bool
}

// classificationTable is the fixed mapping from failure kind to policy.
// Kinds missing here fall back to the conservative default below.
var classificationTable = map[degrade.Kind]Classification{
	degrade.KindConnectionLost: {
		Severity:           degrade.SeverityCritical,
		Scope:              ScopeSystem,
		Strategy:           StrategyReconnect,
		Notification:       NotifyAlert,
		EscalationRequired: true,
	},
	degrade.KindMemoryExhausted: {
		Severity:           degrade.SeverityHigh,
		Scope:              ScopeSubsystem,
		Strategy:           StrategyReduceBatchSize,
		Notification:       NotifyWarning,
		EscalationRequired: true,
	},
	degrade.KindVectorUnavailable: {
		Severity:           degrade.SeverityMedium,
		Scope:              ScopeFeature,
		Strategy:           StrategyFallbackMode,
		Notification:       NotifyWarning,
		EscalationRequired: false,
	},
	degrade.KindRateLimited: {
		Severity:           degrade.SeverityLow,
		Scope:              ScopeOperation,
		Strategy:           StrategyOpenCircuit,
		Notification:       NotifyInfo,
		EscalationRequired: false,
	},
	degrade.KindCacheDegraded: {
		Severity:           degrade.SeverityLow,
		Scope:              ScopeFeature,
		Strategy:           StrategyClearCacheRetry,
		Notification:       NotifyInfo,
		EscalationRequired: false,
	},
	degrade.KindConfigInvalid: {
		Severity:           degrade.SeverityCritical,
		Scope:              ScopeSystem,
		Strategy:           StrategyRotateCredentials,
		Notification:       NotifyAlert,
		EscalationRequired: true,
	},
	degrade.KindPartialBatch: {
		Severity:           degrade.SeverityMedium,
		Scope:              ScopeOperation,
		Strategy:           StrategyReduceBatchSize,
		Notification:       NotifyInfo,
		EscalationRequired: false,
	},
}

// defaultClassification covers failures of an unknown kind: treat them
// as serious and demand a human.
var defaultClassification = Classification{
	Severity:           degrade.SeverityHigh,
	Scope:              ScopeSystem,
	Strategy:           StrategyMaintenance,
	Notification:       NotifyAlert,
	EscalationRequired: true,
}

// Classify maps a failure to its handling policy.
func Classify(f *degrade.Failure) Classification {
	if f == nil {
		return defaultClassification
	}
	if c, ok := classificationTable[f.Kind]; ok {
		return c
	}
	return defaultClassification
}
