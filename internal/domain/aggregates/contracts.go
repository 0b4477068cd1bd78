package aggregates

// WriteTxOwnership says where a write's transaction begins and ends.
type WriteTxOwnership string

const (
	// One call, one transaction, opened by the aggregate itself.
	WriteTxOwnedByAggregate WriteTxOwnership = "aggregate_owned"
	// Batch writes commit each input record on its own.
	WriteTxPerRecord WriteTxOwnership = "per_record"
)

// ReadPolicy says which reads an aggregate may serve.
type ReadPolicy string

const (
	// Only the lookups a write needs to check its preconditions, plus DID resolution.
	ReadPolicyInvariantScoped ReadPolicy = "invariant_scoped_reads"
	// Listing and scanning stay on the repos.
	ReadPolicyTableRepoQueries ReadPolicy = "table_repo_queries"
)

type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	ReadPolicy       ReadPolicy
	Notes            string
}

type Aggregate interface {
	Contract() Contract
}

func (c Contract) RequiresAggregateOwnedTx() bool {
	return c.WriteTxOwnership == WriteTxOwnedByAggregate
}
