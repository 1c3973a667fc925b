package recovery

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lyndonlyu/sweepsafe/internal/archive"
	"github.com/lyndonlyu/sweepsafe/internal/gitx"
	"github.com/lyndonlyu/sweepsafe/internal/scan"
)

// metadataFile is the single persisted index; all writes go through an
// atomic tmp+rename replace.
const metadataFile = "recovery_metadata.json"

type metadata struct {
	RecoveryPoints []*Point     `json:"recovery_points"`
	Operations     []*Operation `json:"operations"`
	LastUpdated    time.Time    `json:"last_updated"`
}

// Coordinator owns the recovery directory and the operation lifecycle.
type Coordinator struct {
	dir          string
	snapshotsDir string
	git          gitx.Inspector
	scanner      scan.Scanner
	archiver     archive.Archiver
	now          func() time.Time
	log          *zap.Logger

	mu     sync.Mutex
	points map[string]*Point
	ops    map[string]*Operation
}

// NewCoordinator loads existing metadata from dir and prunes points older
// than retentionDays.
func NewCoordinator(dir string, retentionDays int, git gitx.Inspector, scanner scan.Scanner, archiver archive.Archiver, log *zap.Logger) (*Coordinator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		dir:          dir,
		snapshotsDir: filepath.Join(dir, "snapshots"),
		git:          git,
		scanner:      scanner,
		archiver:     archiver,
		now:          time.Now,
		log:          log,
		points:       make(map[string]*Point),
		ops:          make(map[string]*Operation),
	}
	if err := os.MkdirAll(c.snapshotsDir, 0755); err != nil {
		return nil, fmt.Errorf("recovery: create snapshots dir: %w", err)
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	c.pruneExpired(retentionDays)
	return c, nil
}

// SetClock overrides the coordinator clock; tests only.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

func (c *Coordinator) load() error {
	data, err := os.ReadFile(filepath.Join(c.dir, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("recovery: read metadata: %w", err)
	}

	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("recovery: parse metadata: %w", err)
	}
	for _, p := range meta.RecoveryPoints {
		p.Type = parsePointType(p.TypeName)
		c.points[p.ID] = p
	}
	for _, op := range meta.Operations {
		op.Status = parseStatus(op.StatusName)
		c.ops[op.ID] = op
	}
	return nil
}

// save persists the full index atomically. Callers hold c.mu.
func (c *Coordinator) save() error {
	meta := metadata{LastUpdated: c.now()}
	for _, p := range c.points {
		p.TypeName = p.Type.String()
		meta.RecoveryPoints = append(meta.RecoveryPoints, p)
	}
	for _, op := range c.ops {
		op.StatusName = op.Status.String()
		meta.Operations = append(meta.Operations, op)
	}
	sort.Slice(meta.RecoveryPoints, func(i, j int) bool {
		return meta.RecoveryPoints[i].ID < meta.RecoveryPoints[j].ID
	})
	sort.Slice(meta.Operations, func(i, j int) bool {
		return meta.Operations[i].ID < meta.Operations[j].ID
	})

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("recovery: encode metadata: %w", err)
	}

	target := filepath.Join(c.dir, metadataFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("recovery: write metadata: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("recovery: replace metadata: %w", err)
	}
	return nil
}

func (c *Coordinator) pruneExpired(retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	cutoff := c.now().AddDate(0, 0, -retentionDays)

	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for id, p := range c.points {
		if p.Timestamp.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		c.removeLocked(id)
		c.log.Info("pruned expired recovery point", zap.String("id", id))
	}
	if len(expired) > 0 {
		if err := c.save(); err != nil {
			c.log.Warn("could not save metadata after pruning", zap.Error(err))
		}
	}
}

// Prune removes points older than retentionDays and returns their ids.
func (c *Coordinator) Prune(retentionDays int) []string {
	cutoff := c.now().AddDate(0, 0, -retentionDays)

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for id, p := range c.points {
		if p.Timestamp.Before(cutoff) {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		c.removeLocked(id)
	}
	if len(removed) > 0 {
		if err := c.save(); err != nil {
			c.log.Warn("could not save metadata after pruning", zap.Error(err))
		}
	}
	sort.Strings(removed)
	return removed
}

func (c *Coordinator) removeLocked(id string) {
	p, ok := c.points[id]
	if !ok {
		return
	}
	os.RemoveAll(filepath.Join(c.snapshotsDir, p.ID))
	delete(c.points, id)
}

// newID builds ids like rp_20240110_153045_0042: a UTC stamp plus a 4-digit
// hash of the description to disambiguate same-second points.
func (c *Coordinator) newID(prefix, description string) string {
	h := fnv.New32a()
	h.Write([]byte(description))
	return fmt.Sprintf("%s_%s_%04d", prefix, c.now().UTC().Format("20060102_150405"), h.Sum32()%10000)
}

// CreatePoint captures a recovery point for the tree at root. On any
// failure the partially written snapshot directory is removed.
func (c *Coordinator) CreatePoint(root, description string, ptype PointType, includeGit bool) (*Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.newID("rp", description)
	rpDir := filepath.Join(c.snapshotsDir, id)
	if err := os.MkdirAll(rpDir, 0755); err != nil {
		return nil, fmt.Errorf("recovery: create snapshot dir: %w", err)
	}

	p := &Point{
		ID:          id,
		Timestamp:   c.now(),
		Type:        ptype,
		TypeName:    ptype.String(),
		Description: description,
		Valid:       true,
	}

	fail := func(err error) (*Point, error) {
		os.RemoveAll(rpDir)
		return nil, err
	}

	if includeGit && c.git.IsRepository() {
		state, err := c.git.CaptureState()
		if err != nil {
			c.log.Warn("could not capture complete git state", zap.Error(err))
		} else {
			p.GitState = &state
		}
	}

	switch ptype {
	case FullSnapshot, Incremental:
		// Incremental snapshots capture the same set as full ones; delta
		// logic would need a prior-point diff.
		archivePath := filepath.Join(rpDir, "full_snapshot.tar.gz")
		files, err := c.scanner.FindByPatterns(root, scan.BackupPatterns)
		if err != nil {
			return fail(fmt.Errorf("recovery: enumerate backups: %w", err))
		}
		if err := c.archiver.Create(root, files, archivePath); err != nil {
			return fail(fmt.Errorf("recovery: create snapshot: %w", err))
		}
		p.ArchivePath = archivePath
		p.Inventory = c.buildInventory(files)
	case MetadataOnly:
		files, err := c.scanner.FindByPatterns(root, scan.BackupPatterns)
		if err != nil {
			return fail(fmt.Errorf("recovery: enumerate backups: %w", err))
		}
		p.Inventory = c.buildInventory(files)
	case GitStateOnly:
		// git state captured above is the whole point
	}

	p.Checksum = c.pointChecksum(p)
	if p.ArchivePath != "" {
		if info, err := os.Stat(p.ArchivePath); err == nil {
			p.SizeBytes = info.Size()
		}
	}

	metaData, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fail(fmt.Errorf("recovery: encode point metadata: %w", err))
	}
	if err := os.WriteFile(filepath.Join(rpDir, "metadata.json"), metaData, 0644); err != nil {
		return fail(fmt.Errorf("recovery: write point metadata: %w", err))
	}

	c.points[id] = p
	if err := c.save(); err != nil {
		delete(c.points, id)
		return fail(err)
	}

	c.log.Info("recovery point created",
		zap.String("id", id),
		zap.String("type", ptype.String()),
		zap.Int64("size_bytes", p.SizeBytes))
	return p, nil
}

func (c *Coordinator) buildInventory(files []string) []FileRecord {
	var inv []FileRecord
	for _, f := range files {
		info, err := c.scanner.Stat(f)
		if err != nil {
			c.log.Warn("could not inventory file", zap.String("path", f), zap.Error(err))
			continue
		}
		sum, err := c.scanner.ContentHash(f)
		if err != nil {
			sum = ""
		}
		inv = append(inv, FileRecord{Path: f, Size: info.Size, MTime: info.MTime, Checksum: sum})
	}
	return inv
}

// pointChecksum binds id, timestamp, description and archive contents into
// one integrity value.
func (c *Coordinator) pointChecksum(p *Point) string {
	h := sha256.New()
	h.Write([]byte(p.ID))
	h.Write([]byte(p.Timestamp.Format(time.RFC3339Nano)))
	h.Write([]byte(p.Description))
	if p.ArchivePath != "" {
		if sum, err := fileChecksum(p.ArchivePath); err == nil {
			h.Write([]byte(sum))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// StartOperation registers a new pending operation, optionally bound to a
// recovery point.
func (c *Coordinator) StartOperation(description, recoveryPointID string) (*Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	op := &Operation{
		ID:              c.newID("op", description),
		Timestamp:       c.now(),
		Status:          Pending,
		StatusName:      Pending.String(),
		Description:     description,
		RecoveryPointID: recoveryPointID,
	}
	c.ops[op.ID] = op
	if err := c.save(); err != nil {
		delete(c.ops, op.ID)
		return nil, err
	}
	c.log.Info("operation started", zap.String("id", op.ID))
	return op, nil
}

// Execute runs fn under the operation lifecycle. processed is the full
// candidate list recorded before fn starts, so a partial failure still shows
// what the operation was attempting. On failure the bound recovery point is
// rolled back exactly once; a failed rollback leaves the operation in the
// failed state. fn reports deleted files so the operation record stays
// accurate even on partial failure.
func (c *Coordinator) Execute(root, opID string, processed []string, fn func() (deleted []string, err error)) error {
	c.mu.Lock()
	op, ok := c.ops[opID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("recovery: %w: %s", ErrOperationNotFound, opID)
	}
	op.Status = InProgress
	op.FilesProcessed = processed
	if err := c.save(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	deleted, err := fn()

	c.mu.Lock()
	defer c.mu.Unlock()
	op.FilesDeleted = append(op.FilesDeleted, deleted...)

	if err == nil {
		op.Status = Completed
		if saveErr := c.save(); saveErr != nil {
			return saveErr
		}
		c.log.Info("operation completed", zap.String("id", opID))
		return nil
	}

	op.Status = Failed
	op.ErrorMessage = err.Error()
	if saveErr := c.save(); saveErr != nil {
		c.log.Warn("could not persist failed status", zap.Error(saveErr))
	}
	c.log.Error("operation failed", zap.String("id", opID), zap.Error(err))

	if op.RecoveryPointID != "" {
		if rbErr := c.rollbackLocked(root, op.RecoveryPointID); rbErr != nil {
			c.log.Error("automatic rollback failed", zap.String("id", opID), zap.Error(rbErr))
		} else {
			op.Status = RolledBack
			op.RollbackPointID = op.RecoveryPointID
			if saveErr := c.save(); saveErr != nil {
				c.log.Warn("could not persist rolled back status", zap.Error(saveErr))
			}
			c.log.Info("automatic rollback completed", zap.String("id", opID))
		}
	}

	return fmt.Errorf("recovery: operation %s failed: %w", opID, err)
}

// Rollback restores the tree at root to the given recovery point.
func (c *Coordinator) Rollback(root, rpID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbackLocked(root, rpID)
}

func (c *Coordinator) rollbackLocked(root, rpID string) error {
	p, ok := c.points[rpID]
	if !ok {
		return fmt.Errorf("recovery: %w: %s", ErrPointNotFound, rpID)
	}

	if err := c.verifyIntegrity(p); err != nil {
		p.Valid = false
		if saveErr := c.save(); saveErr != nil {
			c.log.Warn("could not persist invalid flag", zap.Error(saveErr))
		}
		return err
	}

	if p.GitState != nil {
		if err := c.git.RestoreState(*p.GitState); err != nil {
			c.log.Warn("could not fully restore git state", zap.Error(err))
		}
	}

	if p.ArchivePath != "" {
		if err := c.archiver.Extract(p.ArchivePath, root); err != nil {
			return fmt.Errorf("recovery: restore files from %s: %w", rpID, err)
		}
	}

	c.log.Info("rollback completed", zap.String("id", rpID))
	return nil
}

func (c *Coordinator) verifyIntegrity(p *Point) error {
	if _, err := os.Stat(filepath.Join(c.snapshotsDir, p.ID, "metadata.json")); err != nil {
		return fmt.Errorf("recovery: %w: metadata missing for %s", ErrIntegrity, p.ID)
	}
	if p.ArchivePath != "" {
		if _, err := os.Stat(p.ArchivePath); err != nil {
			return fmt.Errorf("recovery: %w: archive missing for %s", ErrIntegrity, p.ID)
		}
	}
	if p.Checksum != "" && c.pointChecksum(p) != p.Checksum {
		return fmt.Errorf("recovery: %w: checksum mismatch for %s", ErrIntegrity, p.ID)
	}
	return nil
}

// EmergencyRestore rolls back to the given point, or the most recent one
// when rpID is empty.
func (c *Coordinator) EmergencyRestore(root, rpID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.points) == 0 {
		return ErrNoPoints
	}
	if rpID == "" {
		var newest *Point
		for _, p := range c.points {
			if newest == nil || p.Timestamp.After(newest.Timestamp) {
				newest = p
			}
		}
		rpID = newest.ID
	}
	c.log.Warn("emergency restore", zap.String("id", rpID))
	return c.rollbackLocked(root, rpID)
}

// List returns all recovery points, newest first.
func (c *Coordinator) List() []*Point {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Point, 0, len(c.points))
	for _, p := range c.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Get returns one recovery point by id.
func (c *Coordinator) Get(rpID string) (*Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.points[rpID]
	if !ok {
		return nil, fmt.Errorf("recovery: %w: %s", ErrPointNotFound, rpID)
	}
	return p, nil
}

// GetOperation returns one operation by id.
func (c *Coordinator) GetOperation(opID string) (*Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.ops[opID]
	if !ok {
		return nil, fmt.Errorf("recovery: %w: %s", ErrOperationNotFound, opID)
	}
	return op, nil
}

// StatusReport summarizes the coordinator state.
type StatusReport struct {
	Timestamp   time.Time `json:"timestamp"`
	TotalPoints int       `json:"total_points"`
	ValidPoints int       `json:"valid_points"`
	TotalSizeMB float64   `json:"total_size_mb"`
	Oldest      time.Time `json:"oldest,omitempty"`
	Newest      time.Time `json:"newest,omitempty"`
	TotalOps    int       `json:"total_operations"`
	Recent24h   int       `json:"recent_24h"`
	Completed   int       `json:"completed"`
	FailedOps   int       `json:"failed"`
	RolledBack  int       `json:"rolled_back"`
}

func (c *Coordinator) Status() StatusReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	rep := StatusReport{Timestamp: now, TotalPoints: len(c.points), TotalOps: len(c.ops)}

	var totalBytes int64
	for _, p := range c.points {
		if p.Valid {
			rep.ValidPoints++
		}
		totalBytes += p.SizeBytes
		if rep.Oldest.IsZero() || p.Timestamp.Before(rep.Oldest) {
			rep.Oldest = p.Timestamp
		}
		if p.Timestamp.After(rep.Newest) {
			rep.Newest = p.Timestamp
		}
	}
	rep.TotalSizeMB = float64(totalBytes) / (1024 * 1024)

	for _, op := range c.ops {
		if now.Sub(op.Timestamp) < 24*time.Hour {
			rep.Recent24h++
		}
		switch op.Status {
		case Completed:
			rep.Completed++
		case Failed:
			rep.FailedOps++
		case RolledBack:
			rep.RolledBack++
		}
	}
	return rep
}

func parsePointType(s string) PointType {
	switch s {
	case "full_snapshot":
		return FullSnapshot
	case "incremental":
		return Incremental
	case "metadata_only":
		return MetadataOnly
	case "git_state":
		return GitStateOnly
	default:
		return FullSnapshot
	}
}

func parseStatus(s string) OperationStatus {
	switch s {
	case "pending":
		return Pending
	case "in_progress":
		return InProgress
	case "completed":
		return Completed
	case "failed":
		return Failed
	case "rolled_back":
		return RolledBack
	default:
		return Pending
	}
}
