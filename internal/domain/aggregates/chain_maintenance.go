package aggregates

import (
	"context"
	"time"
)

var ChainMaintenanceContract = Contract{
	Name:             "GMN.ChainMaintenance",
	WriteTxOwnership: WriteTxPerRecord,
	ReadPolicy:       ReadPolicyTableRepoQueries,
	Notes:            "Rebuilds revision links, chain membership and SID bindings from an authoritative record source, one transaction per chain. Chains changed during the run are skipped and reported.",
}

// ChainMaintenance repairs and audits revision chains in bulk.
type ChainMaintenance interface {
	Aggregate

	// RepairAllChains reconciles stored state with the records of source. Running it
	// again with the same source changes nothing.
	RepairAllChains(ctx context.Context, source RevisionSource) (RepairReport, error)

	// Verify walks every stored chain and reports integrity violations without changing anything.
	Verify(ctx context.Context) (VerifyReport, error)

	// Export returns the stored revision state of every PID, sorted by PID.
	Export(ctx context.Context) ([]RevisionRecord, error)
}

// RevisionRecord is the authoritative revision state of one PID. Empty strings mean null.
type RevisionRecord struct {
	PID         string `yaml:"pid" json:"pid"`
	Obsoletes   string `yaml:"obsoletes,omitempty" json:"obsoletes,omitempty"`
	ObsoletedBy string `yaml:"obsoleted_by,omitempty" json:"obsoleted_by,omitempty"`
	SID         string `yaml:"sid,omitempty" json:"sid,omitempty"`
}

// RevisionSource supplies records for a repair run.
type RevisionSource interface {
	Name() string
	Records(ctx context.Context) ([]RevisionRecord, error)
}

type RepairReport struct {
	Source        string
	Records       int
	Skipped       int
	LinksChanged  int
	ChainsRebuilt int
	SIDsBound     int
	ChainsRemoved int
	DroppedLinks  []string
	// Stale lists the heads of chains that changed while the run was planned
	// and were left as they were.
	Stale      []string
	StartedAt  time.Time
	FinishedAt time.Time
}

type VerifyReport struct {
	Objects    int
	Chains     int
	Violations []ChainViolation
}

type ChainViolation struct {
	PID     string
	Message string
}
