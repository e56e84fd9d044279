package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	DefaultMatchTopic        = "hma_matches"
	DefaultActionTopic       = "hma_actions"
	DefaultReactionTopic     = "hma_reactions"
	DefaultConfigUpdateTopic = "hma_config_updates"
	DefaultDLQTopic          = "hma_dlq"
)

const (
	DefaultMongoDBName = "actioner"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultReloadIntervalSeconds = 60
	DefaultDispatchTimeout       = 30 * time.Second
	DefaultPerformTTL            = 24 * time.Hour
)

const (
	CacheKeyPrefixPerform = "actioner:perform:"
)

const (
	ServiceNameEvaluator = "action-evaluator"
	ServiceNamePerformer = "action-performer"
)

// Configuration types stored in the catalog.
const (
	ConfigTypeActionRule      = "ActionRule"
	ConfigTypeAction          = "Action"
	ConfigTypeActionPerformer = "ActionPerformer"
	ConfigTypeReactingPolicy  = "ReactingPolicy"
	ConfigTypeReactionRule    = "ReactionRule"
)

// ReactingScopeGlobal names the reacting policy that applies to every bank.
const ReactingScopeGlobal = "*"

// Behaviour of the perform guard when its store errors.
const (
	FallbackAllow = "allow"
	FallbackFail  = "fail"
)
