package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"squid-go/domain/experiment"
)

// Collection names.
const (
	ExperimentCollection = "experiment"
	CaptureCollection    = "capture"
)

// experimentDocument is the MongoDB document structure for experiments.
// The experiment UUID is used as the document id.
type experimentDocument struct {
	ID             string              `bson:"_id"`
	Name           string              `bson:"name"`
	PlanName       string              `bson:"plan_name,omitempty"`
	Regions        []string            `bson:"regions"`
	Channels       []string            `bson:"channels"`
	TimePoints     int                 `bson:"time_points"`
	Planes         int                 `bson:"planes"`
	TotalFOVs      int                 `bson:"total_fovs"`
	TotalImages    int                 `bson:"total_images"`
	CompletedFOVs  int                 `bson:"completed_fovs"`
	CapturedImages int                 `bson:"captured_images"`
	FailedFOVs     []failedFOVDocument `bson:"failed_fovs,omitempty"`
	State          string              `bson:"state"`
	Error          string              `bson:"error,omitempty"`
	OutputDir      string              `bson:"output_dir,omitempty"`
	StartedAt      time.Time           `bson:"started_at"`
	FinishedAt     time.Time           `bson:"finished_at,omitempty"`
}

type failedFOVDocument struct {
	TimePoint int    `bson:"time_point"`
	RegionID  string `bson:"region_id"`
	FOVIndex  int    `bson:"fov_index"`
	Error     string `bson:"error"`
}

// captureDocument is the MongoDB document structure for capture metadata.
type captureDocument struct {
	ExperimentID string    `bson:"experiment_id"`
	TimePoint    int       `bson:"time_point"`
	RegionID     string    `bson:"region_id"`
	RegionIndex  int       `bson:"region_index"`
	FOVIndex     int       `bson:"fov_index"`
	ZIndex       int       `bson:"z_index"`
	Channel      string    `bson:"channel"`
	X            float64   `bson:"x_mm"`
	Y            float64   `bson:"y_mm"`
	Z            float64   `bson:"z_mm"`
	FrameID      int64     `bson:"frame_id"`
	Width        int       `bson:"width"`
	Height       int       `bson:"height"`
	PixelFormat  string    `bson:"pixel_format"`
	CapturedAt   time.Time `bson:"captured_at"`
	File         string    `bson:"file,omitempty"`
}

// MongoExperimentRepository implements experiment.Repository using MongoDB.
type MongoExperimentRepository struct {
	experiments *mongo.Collection
	captures    *mongo.Collection
	logger      *slog.Logger
}

var _ experiment.Repository = (*MongoExperimentRepository)(nil)

// NewMongoExperimentRepository creates a new MongoDB-based experiment repository.
func NewMongoExperimentRepository(db *MongoDB, logger *slog.Logger) *MongoExperimentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoExperimentRepository{
		experiments: db.Collection(ExperimentCollection),
		captures:    db.Collection(CaptureCollection),
		logger:      logger,
	}
}

// FindByID retrieves an experiment by its id.
func (r *MongoExperimentRepository) FindByID(ctx context.Context, id string) (*experiment.Experiment, error) {
	var doc experimentDocument
	if err := r.experiments.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find experiment: %w", err)
	}
	return documentToExperiment(&doc), nil
}

// FindAll retrieves all experiments.
func (r *MongoExperimentRepository) FindAll(ctx context.Context) ([]*experiment.Experiment, error) {
	cursor, err := r.experiments.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to find experiments: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []experimentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode experiments: %w", err)
	}

	exps := make([]*experiment.Experiment, len(docs))
	for i := range docs {
		exps[i] = documentToExperiment(&docs[i])
	}
	return exps, nil
}

// Insert creates a new experiment record.
func (r *MongoExperimentRepository) Insert(ctx context.Context, exp *experiment.Experiment) error {
	if _, err := r.experiments.InsertOne(ctx, experimentToDocument(exp)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return experiment.ErrDuplicateID
		}
		return fmt.Errorf("failed to insert experiment: %w", err)
	}
	r.logger.Info("Experiment inserted", "id", exp.ID, "name", exp.Name)
	return nil
}

// Update replaces an existing experiment record.
func (r *MongoExperimentRepository) Update(ctx context.Context, exp *experiment.Experiment) error {
	result, err := r.experiments.ReplaceOne(ctx, bson.M{"_id": exp.ID}, experimentToDocument(exp))
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}
	if result.MatchedCount == 0 {
		return experiment.ErrNotFound
	}
	return nil
}

// Delete removes an experiment and its captures.
func (r *MongoExperimentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.experiments.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	if result.DeletedCount == 0 {
		return experiment.ErrNotFound
	}
	if _, err := r.captures.DeleteMany(ctx, bson.M{"experiment_id": id}); err != nil {
		return fmt.Errorf("failed to delete captures: %w", err)
	}
	r.logger.Info("Experiment deleted", "id", id)
	return nil
}

// InsertCapture stores the metadata of one captured image.
func (r *MongoExperimentRepository) InsertCapture(ctx context.Context, c experiment.Capture) error {
	if _, err := r.captures.InsertOne(ctx, captureToDocument(c)); err != nil {
		return fmt.Errorf("failed to insert capture: %w", err)
	}
	return nil
}

// FindCaptures returns the captures of an experiment in capture order.
func (r *MongoExperimentRepository) FindCaptures(ctx context.Context, experimentID string) ([]experiment.Capture, error) {
	opts := options.Find().SetSort(bson.D{{Key: "captured_at", Value: 1}, {Key: "frame_id", Value: 1}})
	cursor, err := r.captures.Find(ctx, bson.M{"experiment_id": experimentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find captures: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []captureDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode captures: %w", err)
	}

	out := make([]experiment.Capture, len(docs))
	for i := range docs {
		out[i] = documentToCapture(&docs[i])
	}
	return out, nil
}

// EnsureIndexes creates the capture lookup index.
func (r *MongoExperimentRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.captures.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "experiment_id", Value: 1}, {Key: "captured_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create capture index: %w", err)
	}
	return nil
}

func documentToExperiment(doc *experimentDocument) *experiment.Experiment {
	exp := &experiment.Experiment{
		ID:             doc.ID,
		Name:           doc.Name,
		PlanName:       doc.PlanName,
		Regions:        doc.Regions,
		Channels:       doc.Channels,
		TimePoints:     doc.TimePoints,
		Planes:         doc.Planes,
		TotalFOVs:      doc.TotalFOVs,
		TotalImages:    doc.TotalImages,
		CompletedFOVs:  doc.CompletedFOVs,
		CapturedImages: doc.CapturedImages,
		State:          doc.State,
		Error:          doc.Error,
		OutputDir:      doc.OutputDir,
		StartedAt:      doc.StartedAt,
		FinishedAt:     doc.FinishedAt,
	}
	for _, f := range doc.FailedFOVs {
		exp.FailedFOVs = append(exp.FailedFOVs, experiment.FailedFOV{
			TimePoint: f.TimePoint,
			RegionID:  f.RegionID,
			FOVIndex:  f.FOVIndex,
			Error:     f.Error,
		})
	}
	return exp
}

func experimentToDocument(exp *experiment.Experiment) *experimentDocument {
	doc := &experimentDocument{
		ID:             exp.ID,
		Name:           exp.Name,
		PlanName:       exp.PlanName,
		Regions:        exp.Regions,
		Channels:       exp.Channels,
		TimePoints:     exp.TimePoints,
		Planes:         exp.Planes,
		TotalFOVs:      exp.TotalFOVs,
		TotalImages:    exp.TotalImages,
		CompletedFOVs:  exp.CompletedFOVs,
		CapturedImages: exp.CapturedImages,
		State:          exp.State,
		Error:          exp.Error,
		OutputDir:      exp.OutputDir,
		StartedAt:      exp.StartedAt,
		FinishedAt:     exp.FinishedAt,
	}
	for _, f := range exp.FailedFOVs {
		doc.FailedFOVs = append(doc.FailedFOVs, failedFOVDocument{
			TimePoint: f.TimePoint,
			RegionID:  f.RegionID,
			FOVIndex:  f.FOVIndex,
			Error:     f.Error,
		})
	}
	return doc
}

func captureToDocument(c experiment.Capture) *captureDocument {
	return &captureDocument{
		ExperimentID: c.ExperimentID,
		TimePoint:    c.TimePoint,
		RegionID:     c.RegionID,
		RegionIndex:  c.RegionIndex,
		FOVIndex:     c.FOVIndex,
		ZIndex:       c.ZIndex,
		Channel:      c.Channel,
		X:            c.X,
		Y:            c.Y,
		Z:            c.Z,
		FrameID:      c.FrameID,
		Width:        c.Width,
		Height:       c.Height,
		PixelFormat:  c.PixelFormat,
		CapturedAt:   c.CapturedAt,
		File:         c.File,
	}
}

func documentToCapture(doc *captureDocument) experiment.Capture {
	return experiment.Capture{
		ExperimentID: doc.ExperimentID,
		TimePoint:    doc.TimePoint,
		RegionID:     doc.RegionID,
		RegionIndex:  doc.RegionIndex,
		FOVIndex:     doc.FOVIndex,
		ZIndex:       doc.ZIndex,
		Channel:      doc.Channel,
		X:            doc.X,
		Y:            doc.Y,
		Z:            doc.Z,
		FrameID:      doc.FrameID,
		Width:        doc.Width,
		Height:       doc.Height,
		PixelFormat:  doc.PixelFormat,
		CapturedAt:   doc.CapturedAt,
		File:         doc.File,
	}
}
