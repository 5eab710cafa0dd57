package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Split names a dataset partition scored by the readout.
type Split string

const (
	SplitTrain      Split = "train"
	SplitValidation Split = "valid"
	SplitTest       Split = "test"
)

// Splits lists every split in reporting order.
var Splits = []Split{SplitTrain, SplitValidation, SplitTest}

type DelayMemory struct {
	Delay int     `json:"delay"`
	Train float64 `json:"train"`
	Valid float64 `json:"valid"`
	Test  float64 `json:"test"`
}

type MemoryAggregate struct {
	TrainMemory float64 `json:"train_memory"`
	ValidMemory float64 `json:"valid_memory"`
	TestMemory  float64 `json:"test_memory"`
	TrainStd    float64 `json:"train_std"`
	TrainVar    float64 `json:"train_var"`
}

// MemoryRun is the persisted outcome of one memory-capacity run.
type MemoryRun struct {
	VersionedRecord
	ID           string          `json:"id"`
	Model        string          `json:"model"`
	Topology     string          `json:"topology,omitempty"`
	HiddenWidth  int             `json:"hidden_width"`
	Trials       int             `json:"trials"`
	MaxDelay     int             `json:"max_delay"`
	Seed         int64           `json:"seed"`
	UseTest      bool            `json:"use_test"`
	Series       []DelayMemory   `json:"series"`
	Aggregate    MemoryAggregate `json:"aggregate"`
	CreatedAtUTC string          `json:"created_at_utc"`
}
