package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/metadata"
	"github.com/rohmanhakim/pdf-discovery-engine/pkg/failure"
	"github.com/rohmanhakim/pdf-discovery-engine/pkg/fileutil"
	"github.com/rohmanhakim/pdf-discovery-engine/pkg/hashutil"
)

/*
Responsibilities
- Snapshot enough frontier/session state to resume a crawl after an
  interruption without re-visiting already-processed URLs
- Never leave a reader observing a half-written snapshot
- Detect snapshot corruption on load, rather than silently resuming
  from a truncated or torn file

A checkpoint is opaque to everything except the orchestrator that wrote
it: this package does not know what a URL "means", only how to get its
bytes onto and back off disk safely.
*/

// Snapshot is the full resumable state of one discovery session.
type Snapshot struct {
	SessionID string          `json:"session_id"`
	Visited   []string        `json:"visited"`   // normalized URLs whose pages were fully processed
	Queue     []QueuedURL     `json:"queue"`      // pending frontier entries, in BFS order
	Stats     metadata.CrawlStats `json:"stats"`
	SavedAt   time.Time       `json:"saved_at"`
}

type QueuedURL struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// envelope is what's actually written to disk: the snapshot plus an
// integrity digest of its own JSON encoding, so Load can distinguish a
// torn write from a legitimately empty/new checkpoint.
type envelope struct {
	Snapshot Snapshot `json:"snapshot"`
	Digest   string   `json:"digest"`
}

type CheckpointError struct {
	Message   string
	Retryable bool
}

func (e *CheckpointError) Error() string { return fmt.Sprintf("checkpoint error: %s", e.Message) }

func (e *CheckpointError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// Store persists and restores Snapshots for a single session directory.
type Store struct {
	sessionDir   string
	metadataSink metadata.MetadataSink
}

func NewStore(sessionDir string, metadataSink metadata.MetadataSink) *Store {
	if metadataSink == nil {
		metadataSink = metadata.NoopSink{}
	}
	return &Store{sessionDir: sessionDir, metadataSink: metadataSink}
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.sessionDir, fmt.Sprintf("crawler_state_%s", sessionID))
}

// Save atomically writes snapshot to its session file. A concurrent or
// subsequent Load of the same session will never observe a partial write.
func (s *Store) Save(snapshot Snapshot) failure.ClassifiedError {
	snapshot.SavedAt = time.Now()

	body, err := json.Marshal(snapshot)
	if err != nil {
		return &CheckpointError{Message: err.Error(), Retryable: false}
	}
	digest, err := hashutil.HashBytes(body, hashutil.HashAlgoBLAKE3)
	if err != nil {
		return &CheckpointError{Message: err.Error(), Retryable: false}
	}

	out, err := json.Marshal(envelope{Snapshot: snapshot, Digest: digest})
	if err != nil {
		return &CheckpointError{Message: err.Error(), Retryable: false}
	}

	path := s.path(snapshot.SessionID)
	if fileErr := fileutil.AtomicWriteFile(path, out, 0644); fileErr != nil {
		s.metadataSink.RecordError(metadata.ErrorRecord{
			PackageName: "checkpoint",
			Action:      "Save",
			Cause:       metadata.CauseStorageFailure,
			ErrorString: fileErr.Error(),
			ObservedAt:  time.Now(),
			Attrs:       []metadata.Attribute{metadata.NewAttr(metadata.AttrSessionID, snapshot.SessionID)},
		})
		return &CheckpointError{Message: fileErr.Error(), Retryable: true}
	}

	s.metadataSink.RecordArtifact(metadata.ArtifactCheckpoint, path,
		metadata.NewAttr(metadata.AttrSessionID, snapshot.SessionID))
	return nil
}

// Load restores a session's last saved snapshot. ok is false if no
// checkpoint exists yet for sessionID (not an error: a fresh session has
// no prior state).
func (s *Store) Load(sessionID string) (Snapshot, bool, failure.ClassifiedError) {
	path := s.path(sessionID)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, &CheckpointError{Message: err.Error(), Retryable: true}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Snapshot{}, false, &CheckpointError{
			Message:   fmt.Sprintf("corrupt checkpoint: %v", err),
			Retryable: false,
		}
	}

	body, err := json.Marshal(env.Snapshot)
	if err != nil {
		return Snapshot{}, false, &CheckpointError{Message: err.Error(), Retryable: false}
	}
	digest, err := hashutil.HashBytes(body, hashutil.HashAlgoBLAKE3)
	if err != nil {
		return Snapshot{}, false, &CheckpointError{Message: err.Error(), Retryable: false}
	}
	if digest != env.Digest {
		return Snapshot{}, false, &CheckpointError{
			Message:   "checkpoint digest mismatch: file is corrupt or was torn during write",
			Retryable: false,
		}
	}

	return env.Snapshot, true, nil
}
