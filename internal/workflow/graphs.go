package workflow

import "orderline/internal/domain"

// OrderGraph: pending -> processing -> shipping -> shipped -> delivered, with
// cancel allowed until the parcel ships. shipped re-enters itself when the
// shipping proof is re-uploaded.
func OrderGraph() Graph {
	return Graph{
		Initial: domain.StatusPending,
		Statuses: []domain.Status{
			domain.StatusPending,
			domain.StatusProcessing,
			domain.StatusShipping,
			domain.StatusShipped,
			domain.StatusDelivered,
			domain.StatusCanceled,
		},
		Edges: map[domain.Status][]domain.Status{
			domain.StatusPending:    {domain.StatusProcessing, domain.StatusCanceled},
			domain.StatusProcessing: {domain.StatusShipping, domain.StatusCanceled},
			domain.StatusShipping:   {domain.StatusShipped, domain.StatusCanceled},
			domain.StatusShipped:    {domain.StatusShipped, domain.StatusDelivered},
		},
		Assignment: AssignmentRule{
			Role:       domain.RoleShipper,
			Claimable:  []domain.Status{domain.StatusShipping},
			Assignable: []domain.Status{domain.StatusShipping},
			Releasable: []domain.Status{domain.StatusShipping},
		},
	}
}

// QuoteGraph: pending -> reviewing -> quoted -> approved -> completed. A quote
// can be rejected before approval and re-opened for review. quoted re-enters
// itself for price revisions.
func QuoteGraph() Graph {
	open := []domain.Status{
		domain.StatusPending,
		domain.StatusReviewing,
		domain.StatusQuoted,
		domain.StatusApproved,
		domain.StatusRejected,
	}
	return Graph{
		Initial: domain.StatusPending,
		Statuses: []domain.Status{
			domain.StatusPending,
			domain.StatusReviewing,
			domain.StatusQuoted,
			domain.StatusApproved,
			domain.StatusRejected,
			domain.StatusCompleted,
		},
		Edges: map[domain.Status][]domain.Status{
			domain.StatusPending:   {domain.StatusReviewing, domain.StatusRejected},
			domain.StatusReviewing: {domain.StatusQuoted, domain.StatusRejected},
			domain.StatusQuoted:    {domain.StatusQuoted, domain.StatusApproved, domain.StatusRejected},
			domain.StatusApproved:  {domain.StatusCompleted},
			domain.StatusRejected:  {domain.StatusReviewing},
		},
		Assignment: AssignmentRule{
			Role:                domain.RoleDesigner,
			Claimable:           []domain.Status{domain.StatusPending, domain.StatusReviewing},
			Assignable:          open,
			Releasable:          open,
			LockOnPrimaryDesign: true,
			Reassignable:        true,
		},
	}
}
