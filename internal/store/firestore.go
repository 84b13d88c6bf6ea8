package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/marlow/finreporter/internal/domain"
)

// FirestoreStore persists report records in a Firestore collection, one
// document per report plus a subcollection of ordered pieces for any field
// that exceeded the overflow threshold.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore connects to Firestore for the given project.
func NewFirestoreStore(ctx context.Context, projectID, collection, credentialsFile string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore store")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	if collection == "" {
		collection = "reports"
	}
	return &FirestoreStore{client: client, collection: collection}, nil
}

// Ping verifies the store is reachable. Used once at startup to decide
// between remote and in-memory mode.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	iter := s.client.Collection(s.collection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && err != iterator.Done {
		return fmt.Errorf("firestore unreachable: %w", err)
	}
	return nil
}

func (s *FirestoreStore) doc(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

// chunkCollection names the subcollection holding overflow pieces of a field.
func chunkCollection(field string) string {
	if field == "extracted_text" {
		return "text_chunks"
	}
	return field + "_chunks"
}

func (s *FirestoreStore) Save(ctx context.Context, report *domain.Report) error {
	if _, err := s.doc(report.ID).Set(ctx, report); err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.ID, err)
	}
	return nil
}

func (s *FirestoreStore) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	if err := validateFields(fields); err != nil {
		return err
	}

	merged := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		merged[k] = v
	}
	overflow, cleared := applyOverflow(merged)

	// Chunks go in first so a record never advertises a truncated field
	// whose pieces are missing.
	for field, pieces := range overflow {
		col := s.doc(id).Collection(chunkCollection(field))
		for _, p := range pieces {
			ref := col.Doc(fmt.Sprintf("chunk_%d", p.Index))
			if _, err := ref.Set(ctx, p); err != nil {
				return fmt.Errorf("failed to write chunk %d of %s: %w", p.Index, id, err)
			}
		}
	}

	_, err := s.doc(id).Set(ctx, merged, firestore.MergeAll)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update report %s: %w", id, err)
	}

	// The record no longer points at the old pieces, so they can go now:
	// everything for a field written under the threshold, and any leftover
	// high-index pieces of an earlier, larger value.
	for _, field := range cleared {
		if err := s.deleteChunks(ctx, id, field, 0); err != nil {
			return err
		}
	}
	for field, pieces := range overflow {
		if err := s.deleteChunks(ctx, id, field, len(pieces)); err != nil {
			return err
		}
	}
	return nil
}

// deleteChunks removes the overflow pieces of field whose index is >= from.
func (s *FirestoreStore) deleteChunks(ctx context.Context, id, field string, from int) error {
	iter := s.doc(id).Collection(chunkCollection(field)).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to scan chunks of %s: %w", id, err)
		}
		var p chunk
		if err := snap.DataTo(&p); err != nil {
			return fmt.Errorf("failed to decode chunk of %s: %w", id, err)
		}
		if p.Index < from {
			continue
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete chunk of %s: %w", id, err)
		}
	}
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*domain.Report, error) {
	snap, err := s.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}

	var report domain.Report
	if err := snap.DataTo(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", id, err)
	}
	report.ID = snap.Ref.ID
	return &report, nil
}

func (s *FirestoreStore) List(ctx context.Context, filter Filter) ([]*domain.Report, error) {
	q := s.client.Collection(s.collection).Query
	if filter.Status != "" {
		q = q.Where("status", "==", string(filter.Status))
	}
	if filter.UserID != "" {
		q = q.Where("user_id", "==", filter.UserID)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var reports []*domain.Report
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list reports: %w", err)
		}
		var report domain.Report
		if err := snap.DataTo(&report); err != nil {
			return nil, fmt.Errorf("failed to decode report %s: %w", snap.Ref.ID, err)
		}
		report.ID = snap.Ref.ID
		reports = append(reports, &report)
	}
	return reports, nil
}

func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	// Remove overflow pieces before the record itself; subcollections are
	// not deleted automatically with their parent.
	if err := s.deleteChunks(ctx, id, "extracted_text", 0); err != nil {
		return err
	}

	if _, err := s.doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete report %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) GetFullValue(ctx context.Context, id, field string) (string, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if field != "extracted_text" {
		return "", fmt.Errorf("field %q has no stored value", field)
	}
	if !report.TextTruncated {
		return report.ExtractedText, nil
	}

	iter := s.doc(id).Collection(chunkCollection(field)).
		OrderBy("chunk_index", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var full []byte
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read chunks of %s: %w", id, err)
		}
		var p chunk
		if err := snap.DataTo(&p); err != nil {
			return "", fmt.Errorf("failed to decode chunk of %s: %w", id, err)
		}
		full = append(full, p.Text...)
	}
	return string(full), nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
