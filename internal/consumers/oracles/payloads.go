package oracles

import "timelock/internal/timelock/models"

const (
	KindAddPriceFeed          models.ActionKind = "oracles.add_price_feed"
	KindRemovePriceFeed       models.ActionKind = "oracles.remove_price_feed"
	KindSetFeedPaused         models.ActionKind = "oracles.set_feed_paused"
	KindSetDeviationThreshold models.ActionKind = "oracles.set_deviation_threshold"
)

const (
	EventFeedAdded          models.EventType = "price_feed_added"
	EventFeedRemoved        models.EventType = "price_feed_removed"
	EventFeedPausedSet      models.EventType = "price_feed_paused_set"
	EventDeviationThreshold models.EventType = "deviation_threshold_set"
)

type Payload interface {
	models.Payload
	isOraclePayload()
}

// AddPriceFeed registers a new feed. Heartbeat is the maximum age, in ticks,
// of a price before it is considered stale.
type AddPriceFeed struct {
	Asset     string      `json:"asset"`
	Source    string      `json:"source"`
	Heartbeat models.Tick `json:"heartbeat"`
}

type RemovePriceFeed struct {
	Asset string `json:"asset"`
}

// SetFeedPaused pauses or resumes a feed. Pausing is the disabling direction.
type SetFeedPaused struct {
	Asset  string `json:"asset"`
	Paused bool   `json:"paused"`
}

type SetDeviationThreshold struct {
	Bps uint64 `json:"bps"`
}

func (AddPriceFeed) Kind() models.ActionKind          { return KindAddPriceFeed }
func (RemovePriceFeed) Kind() models.ActionKind       { return KindRemovePriceFeed }
func (SetFeedPaused) Kind() models.ActionKind         { return KindSetFeedPaused }
func (SetDeviationThreshold) Kind() models.ActionKind { return KindSetDeviationThreshold }

func (p SetFeedPaused) Enables() bool { return !p.Paused }

func (AddPriceFeed) isOraclePayload()          {}
func (RemovePriceFeed) isOraclePayload()       {}
func (SetFeedPaused) isOraclePayload()         {}
func (SetDeviationThreshold) isOraclePayload() {}
