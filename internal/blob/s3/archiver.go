package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeJSONL = "application/x-ndjson"

	// Bid histories above this size are uploaded in parts.
	multipartThreshold = 8 * 1024 * 1024

	archiveRoot = "archive/auctions/"
)

// ArchiveImpl implements domain.Archiver. A finished auction becomes two
// objects under archive/auctions/{id}/: bids.jsonl with the full bid history
// and results.json with the settled rosters. results.json is written last
// and marks the archive as complete, so a retried archive skips auctions
// that already have one.
//
// The primary store is never pruned here.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	now    func() time.Time
}

// NewArchiver creates a new ArchiveImpl. reader may be nil, in which case
// every call re-uploads.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		audit:  audit,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ArchiveAuction uploads a completed or cancelled auction and returns the
// archive directory.
func (a *ArchiveImpl) ArchiveAuction(ctx context.Context, state domain.AuctionState) (string, error) {
	auc := state.Auction
	if !auc.Status.Terminal() {
		return "", domain.NewAuctionError(domain.ErrInvalidState,
			fmt.Sprintf("auction %s is %s, not finished", auc.ID, auc.Status))
	}

	dir := archiveDir(auc.ID)
	resultsPath := dir + "results.json"

	if a.reader != nil {
		done, err := a.reader.Exists(ctx, resultsPath)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive auction %s: %w", auc.ID, err)
		}
		if done {
			return dir, nil
		}
	}

	bids, err := marshalJSONL(state.Bids)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive auction %s marshal bids: %w", auc.ID, err)
	}
	bidsPath := dir + "bids.jsonl"
	if len(bids) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, bidsPath, bytes.NewReader(bids), minPartSize)
	} else {
		err = a.writer.Put(ctx, bidsPath, bytes.NewReader(bids), contentTypeJSONL)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive auction %s upload bids: %w", auc.ID, err)
	}

	results := domain.BuildResults(state, a.now())
	doc, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: archive auction %s marshal results: %w", auc.ID, err)
	}
	if err := a.writer.Put(ctx, resultsPath, bytes.NewReader(doc), contentTypeJSON); err != nil {
		return "", fmt.Errorf("s3blob: archive auction %s upload results: %w", auc.ID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.auction", map[string]any{
			"auction_id": auc.ID,
			"path":       dir,
			"bids":       len(state.Bids),
			"status":     string(auc.Status),
			"irregular":  auc.Irregular,
		}); err != nil {
			return dir, fmt.Errorf("s3blob: archive auction %s audit log: %w", auc.ID, err)
		}
	}

	return dir, nil
}

// Results reads back the archived results of one auction. It returns
// domain.ErrNotFound when the auction was never archived.
func (a *ArchiveImpl) Results(ctx context.Context, auctionID string) (domain.AuctionResults, error) {
	if a.reader == nil {
		return domain.AuctionResults{}, domain.ErrNotFound
	}
	body, err := a.reader.Get(ctx, archiveDir(auctionID)+"results.json")
	if err != nil {
		return domain.AuctionResults{}, err
	}
	defer body.Close()

	var res domain.AuctionResults
	if err := json.NewDecoder(body).Decode(&res); err != nil {
		return domain.AuctionResults{}, fmt.Errorf("s3blob: decode results %s: %w", auctionID, err)
	}
	return res, nil
}

// Archived lists the ids of auctions with a complete archive.
func (a *ArchiveImpl) Archived(ctx context.Context) ([]string, error) {
	if a.reader == nil {
		return nil, nil
	}
	infos, err := a.reader.List(ctx, archiveRoot)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, info := range infos {
		rest := strings.TrimPrefix(info.Path, archiveRoot)
		id, file, ok := strings.Cut(rest, "/")
		if ok && file == "results.json" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// archiveDir builds the S3 key prefix of one auction's archive.
//
//	archive/auctions/{id}/results.json
//	archive/auctions/{id}/bids.jsonl
func archiveDir(auctionID string) string {
	return archiveRoot + auctionID + "/"
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
