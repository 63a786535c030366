package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	pfirestore "github.com/hanko-field/orderdesk/internal/platform/firestore"
	"github.com/hanko-field/orderdesk/internal/platform/textutil"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const (
	ordersCollection = "orders"
	getAllChunkSize  = 300
	countAlias       = "total"
)

// OrderRepository stores orders in the orders collection.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)
	return &OrderRepository{provider: provider, base: base}, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Order{}, repositories.NewOrderNotFoundError("orders.find", orderID)
		}
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

func (r *OrderRepository) FindByIDs(ctx context.Context, orderIDs []string) ([]domain.Order, error) {
	snaps, err := r.getAll(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		order, err := decodeOrder(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.OffsetPage[domain.Order], error) {
	query, err := r.filterQuery(ctx, filter.OrderFilter)
	if err != nil {
		return domain.OffsetPage[domain.Order]{}, err
	}

	total, err := countQuery(ctx, query)
	if err != nil {
		return domain.OffsetPage[domain.Order]{}, err
	}

	paged := query.Offset(filter.Offset())
	if filter.PageSize > 0 {
		paged = paged.Limit(filter.PageSize + 1)
	}
	iter := paged.Documents(ctx)
	defer iter.Stop()

	page := domain.OffsetPage[domain.Order]{
		Page:       max(filter.Page, 1),
		PageSize:   filter.PageSize,
		TotalItems: total,
	}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.OffsetPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		if filter.PageSize > 0 && len(page.Items) == filter.PageSize {
			page.HasNext = true
			break
		}
		order, err := decodeOrder(snap)
		if err != nil {
			return domain.OffsetPage[domain.Order]{}, err
		}
		page.Items = append(page.Items, order)
	}
	return page, nil
}

func (r *OrderRepository) ListIDs(ctx context.Context, filter repositories.OrderListFilter) ([]string, error) {
	query, err := r.filterQuery(ctx, filter.OrderFilter)
	if err != nil {
		return nil, err
	}
	query = query.Select().Offset(filter.Offset())
	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return ids, nil
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.listIds", err)
		}
		ids = append(ids, snap.Ref.ID)
	}
}

func (r *OrderRepository) Scan(ctx context.Context, target repositories.OrderTarget, fn func(domain.Order) error) (int, error) {
	visited := 0
	err := r.each(ctx, target, func(snap *firestore.DocumentSnapshot) error {
		order, err := decodeOrder(snap)
		if err != nil {
			return err
		}
		visited++
		return fn(order)
	}, nil)
	return visited, err
}

// UpdateOne reads and rewrites the order inside a transaction. The full document is written so
// removed adjustments and derived fields stay consistent.
func (r *OrderRepository) UpdateOne(ctx context.Context, orderID string, expectedVersion *int64, fn repositories.OrderMutator) (domain.Order, error) {
	const op = "orders.update"
	orderID = strings.TrimSpace(orderID)
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var (
		result   domain.Order
		passthru error
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				passthru = repositories.NewOrderNotFoundError(op, orderID)
				return passthru
			}
			return err
		}
		current, err := decodeOrder(snap)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != current.Version {
			passthru = repositories.NewVersionMismatchError(op, orderID, *expectedVersion, current.Version)
			return passthru
		}
		mutation, changed, err := fn(current.Clone())
		if err != nil {
			passthru = err
			return err
		}
		if !changed {
			result = current
			return nil
		}
		updated := mutation.Apply(current)
		if err := tx.Set(ref, newOrderDocument(updated)); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if passthru != nil {
		return domain.Order{}, passthru
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError(op, err)
	}
	return result, nil
}

// UpdateMany enqueues one field-level update per changed order on a BulkWriter. History is appended
// with ArrayUnion and the version is incremented server side, so concurrent writers are last-write-wins
// on the replaced fields only.
func (r *OrderRepository) UpdateMany(ctx context.Context, target repositories.OrderTarget, fn repositories.OrderMutator) (repositories.OrderBatchResult, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.OrderBatchResult{}, err
	}
	writer := client.BulkWriter(ctx)
	jobs := make(map[string]*firestore.BulkWriterJob)

	var result repositories.OrderBatchResult
	missing := func(id string) {
		result.Failures = append(result.Failures, repositories.OrderBatchFailure{
			OrderID: id,
			Err:     repositories.NewOrderNotFoundError("orders.updateMany", id),
		})
	}
	visited := 0
	iterErr := r.each(ctx, target, func(snap *firestore.DocumentSnapshot) error {
		visited++
		order, err := decodeOrder(snap)
		if err != nil {
			result.Failures = append(result.Failures, repositories.OrderBatchFailure{OrderID: snap.Ref.ID, Err: err})
			return nil
		}
		mutation, changed, err := fn(order.Clone())
		if err != nil {
			result.Failures = append(result.Failures, repositories.OrderBatchFailure{OrderID: order.ID, Err: err})
			return nil
		}
		if !changed {
			result.Skipped++
			return nil
		}
		job, err := writer.Update(snap.Ref, bulkUpdates(order, mutation))
		if err != nil {
			result.Failures = append(result.Failures, repositories.OrderBatchFailure{OrderID: order.ID, Err: err})
			return nil
		}
		jobs[order.ID] = job
		return nil
	}, missing)
	writer.End()

	r.collectJobs(jobs, &result, "orders.updateMany")
	result.Matched = matchedCount(target, visited)
	if iterErr != nil {
		return result, pfirestore.WrapError("orders.updateMany", iterErr)
	}
	return result, nil
}

func (r *OrderRepository) DeleteMany(ctx context.Context, target repositories.OrderTarget) (repositories.OrderBatchResult, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.OrderBatchResult{}, err
	}
	writer := client.BulkWriter(ctx)
	jobs := make(map[string]*firestore.BulkWriterJob)

	var result repositories.OrderBatchResult
	missing := func(id string) {
		result.Failures = append(result.Failures, repositories.OrderBatchFailure{
			OrderID: id,
			Err:     repositories.NewOrderNotFoundError("orders.deleteMany", id),
		})
	}
	visited := 0
	iterErr := r.each(ctx, target, func(snap *firestore.DocumentSnapshot) error {
		visited++
		job, err := writer.Delete(snap.Ref)
		if err != nil {
			result.Failures = append(result.Failures, repositories.OrderBatchFailure{OrderID: snap.Ref.ID, Err: err})
			return nil
		}
		jobs[snap.Ref.ID] = job
		return nil
	}, missing)
	writer.End()

	r.collectJobs(jobs, &result, "orders.deleteMany")
	result.Matched = matchedCount(target, visited)
	if iterErr != nil {
		return result, pfirestore.WrapError("orders.deleteMany", iterErr)
	}
	return result, nil
}

// Put stores a full order document. It is used to import orders created outside the admin engine.
func (r *OrderRepository) Put(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("orders.put: order id is required")
	}
	return r.base.Set(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) collectJobs(jobs map[string]*firestore.BulkWriterJob, result *repositories.OrderBatchResult, op string) {
	for id, job := range jobs {
		if _, err := job.Results(); err != nil {
			if pfirestore.IsNotFound(err) {
				err = repositories.NewOrderNotFoundError(op, id)
			} else {
				err = pfirestore.WrapError(op, err)
			}
			result.Failures = append(result.Failures, repositories.OrderBatchFailure{OrderID: id, Err: err})
			continue
		}
		result.Applied++
	}
}

// each visits the target documents. For id targets missing documents are reported through
// onMissing; for predicate targets the query is streamed.
func (r *OrderRepository) each(ctx context.Context, target repositories.OrderTarget, visit func(*firestore.DocumentSnapshot) error, onMissing func(id string)) error {
	if !target.IsPredicate() {
		snaps, err := r.getAll(ctx, target.IDs)
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			if !snap.Exists() {
				if onMissing != nil {
					onMissing(snap.Ref.ID)
				}
				continue
			}
			if err := visit(snap); err != nil {
				return err
			}
		}
		return nil
	}

	query, err := r.filterQuery(ctx, *target.Filter)
	if err != nil {
		return err
	}
	iter := query.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return pfirestore.WrapError("orders.scan", err)
		}
		if err := visit(snap); err != nil {
			return err
		}
	}
}

func (r *OrderRepository) getAll(ctx context.Context, ids []string) ([]*firestore.DocumentSnapshot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	coll := client.Collection(ordersCollection)
	out := make([]*firestore.DocumentSnapshot, 0, len(ids))
	for start := 0; start < len(ids); start += getAllChunkSize {
		end := min(start+getAllChunkSize, len(ids))
		refs := make([]*firestore.DocumentRef, 0, end-start)
		for _, id := range ids[start:end] {
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				refs = append(refs, coll.Doc(trimmed))
			}
		}
		snaps, err := client.GetAll(ctx, refs)
		if err != nil {
			return nil, pfirestore.WrapError("orders.getAll", err)
		}
		out = append(out, snaps...)
	}
	return out, nil
}

func (r *OrderRepository) filterQuery(ctx context.Context, filter repositories.OrderFilter) (firestore.Query, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return firestore.Query{}, err
	}
	query := client.Collection(ordersCollection).Query

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		query = query.Where("status", "in", statuses)
	}
	if search := textutil.NormalizeKeyword(filter.Search); search != "" {
		query = query.Where("searchKeywords", "array-contains", search)
	}
	if from := filter.CreatedRange.From; from != nil {
		query = query.Where("createdAt", ">=", from.UTC())
	}
	if to := filter.CreatedRange.To; to != nil {
		query = query.Where("createdAt", "<=", to.UTC())
	}

	sort := repositories.NormalizeSort(filter.Sort)
	direction := firestore.Desc
	if sort.Order == domain.SortAsc {
		direction = firestore.Asc
	}
	return query.OrderBy(sortFieldPath(sort.Field), direction).OrderBy(firestore.DocumentID, direction), nil
}

func sortFieldPath(field repositories.OrderSortField) string {
	switch field {
	case repositories.OrderSortTotal:
		return "totalMinor"
	case repositories.OrderSortOrderNumber:
		return "orderNumber"
	default:
		return "createdAt"
	}
}

func countQuery(ctx context.Context, query firestore.Query) (int, error) {
	results, err := query.NewAggregationQuery().WithCount(countAlias).Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("orders.count", err)
	}
	value, ok := results[countAlias].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("orders.count: unexpected aggregation result %T", results[countAlias])
	}
	return int(value.GetIntegerValue()), nil
}

func bulkUpdates(order domain.Order, mutation repositories.OrderMutation) []firestore.Update {
	updated := mutation.Apply(order)
	updates := []firestore.Update{
		{Path: "version", Value: firestore.Increment(1)},
		{Path: "updatedAt", Value: updated.UpdatedAt},
	}
	if mutation.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: string(updated.Status)})
	}
	if mutation.Rider != nil {
		updates = append(updates, firestore.Update{Path: "rider", Value: riderDocument{Name: updated.Rider.Name}})
	}
	if mutation.Amounts != nil {
		updates = append(updates,
			firestore.Update{Path: "amounts", Value: newOrderAmountsDocument(updated.Amounts)},
			firestore.Update{Path: "totalMinor", Value: minorUnits(updated.Amounts.Total)},
		)
	}
	if mutation.BillingAddress != nil {
		updates = append(updates,
			firestore.Update{Path: "billingAddress", Value: newAddressDocument(updated.BillingAddress)},
			firestore.Update{Path: "searchKeywords", Value: repositories.OrderKeywords(updated)},
		)
	}
	if events := unionHistory(mutation.AppendHistory, uuid.NewString); len(events) > 0 {
		updates = append(updates, firestore.Update{Path: "history", Value: firestore.ArrayUnion(events...)})
	}
	return updates
}

// unionHistory tags each appended entry with a fresh id. ArrayUnion skips elements equal to one
// already stored, and two writes can produce the same code, label and timestamp.
func unionHistory(events []domain.OrderHistoryEvent, newID func() string) []any {
	docs := newHistoryDocuments(events)
	out := make([]any, 0, len(docs))
	for _, doc := range docs {
		doc.ID = newID()
		out = append(out, doc)
	}
	return out
}

func matchedCount(target repositories.OrderTarget, visited int) int {
	if !target.IsPredicate() {
		return len(target.IDs)
	}
	return visited
}

func decodeOrder(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID)
}
