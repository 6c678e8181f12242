package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ap0ught/familyman/cluster"
	"github.com/ap0ught/familyman/face"
	"github.com/ap0ught/familyman/logger"
	"github.com/ap0ught/familyman/manifest"
)

// ClusterOptions configure clustering of stored faces.
type ClusterOptions struct {
	Params       cluster.Params
	ManifestPath string
	MontageDir   string
	DryRun       bool
}

// ClusterReport is the result of clustering a set of faces.
type ClusterReport struct {
	Faces    int
	Clusters int
	Noise    int
	Rows     []manifest.Row
	Montages []string
}

// clusterRun clusters the faces found during the run and writes the manifest
// and montages unless the run is a dry run.
func (r *run) clusterRun(log *logger.Logger) error {
	faces := r.runFaces()
	report, err := clusterFaces(r.engine, faces)
	if err != nil {
		return err
	}
	r.summary.Faces = report.Faces
	r.summary.Clusters = report.Clusters
	r.summary.Noise = report.Noise
	log.Info("Faces clustered", "faces", report.Faces, "clusters", report.Clusters, "noise", report.Noise)

	if r.opts.DryRun || report.Faces == 0 {
		return nil
	}
	if err := export(&report, faces, r.opts.ManifestPath, r.opts.MontageDir, log); err != nil {
		return err
	}
	r.summary.ManifestPath = r.opts.ManifestPath
	return nil
}

// ClusterStored clusters every stored face that has an embedding, in one
// batch, and writes the manifest and montages.
func ClusterStored(ctx context.Context, store FaceStore, opts ClusterOptions, log *logger.Logger) (ClusterReport, error) {
	if log == nil {
		log = logger.NewNop()
	}
	engine, err := cluster.NewEngine(opts.Params)
	if err != nil {
		return ClusterReport{}, err
	}

	stored, err := store.ListWithEmbeddings()
	if err != nil {
		return ClusterReport{}, fmt.Errorf("failed to load stored faces: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return ClusterReport{}, err
	}

	faces := make([]runFace, 0, len(stored))
	for i := range stored {
		f := &stored[i]
		if f.Photo == nil {
			continue
		}
		faces = append(faces, runFace{
			OriginalPath: f.Photo.OriginalPath,
			ReadPath:     f.Photo.OriginalPath,
			FaceIndex:    f.FaceIndex,
			Box:          face.Box{Top: f.Top, Right: f.Right, Bottom: f.Bottom, Left: f.Left},
			Embedding:    f.GetEmbedding(),
		})
	}

	report, err := clusterFaces(engine, faces)
	if err != nil {
		return report, err
	}
	log.Info("Stored faces clustered", "faces", report.Faces, "clusters", report.Clusters, "noise", report.Noise)

	if opts.DryRun || report.Faces == 0 {
		return report, nil
	}
	return report, export(&report, faces, opts.ManifestPath, opts.MontageDir, log)
}

func faceKey(f runFace) string {
	return fmt.Sprintf("%s#%d", f.OriginalPath, f.FaceIndex)
}

// clusterFaces labels faces and builds the sorted manifest rows. Rows and
// faces are not aligned after sorting; rows carry the original path.
func clusterFaces(engine *cluster.Engine, faces []runFace) (ClusterReport, error) {
	points := make([]cluster.Point, len(faces))
	for i, f := range faces {
		points[i] = cluster.Point{Key: faceKey(f), Vector: f.Embedding}
	}
	result, err := engine.Run(points)
	if err != nil {
		return ClusterReport{}, err
	}

	rows := make([]manifest.Row, len(faces))
	for i, f := range faces {
		rows[i] = manifest.Row{
			ClusterID: result.Labels[i],
			Filename:  f.OriginalPath,
			FaceIndex: f.FaceIndex,
			Box:       f.Box,
		}
	}
	manifest.SortRows(rows)

	return ClusterReport{
		Faces:    len(faces),
		Clusters: result.NumClusters(),
		Noise:    result.NoiseCount(),
		Rows:     rows,
	}, nil
}

// export writes the manifest and one montage per label. A montage that cannot
// be built is logged and skipped.
func export(report *ClusterReport, faces []runFace, manifestPath, montageDir string, log *logger.Logger) error {
	if manifestPath != "" {
		if err := manifest.WriteFile(manifestPath, report.Rows); err != nil {
			return err
		}
		log.Info("Manifest written", "path", manifestPath, "rows", len(report.Rows))
	}
	if montageDir == "" {
		return nil
	}
	if err := os.MkdirAll(montageDir, 0755); err != nil {
		return fmt.Errorf("failed to create montage directory %s: %w", montageDir, err)
	}

	readPaths := make(map[string]string, len(faces))
	for _, f := range faces {
		readPaths[faceKey(f)] = f.ReadPath
	}

	tiles := make(map[cluster.Label][]face.Tile)
	for _, row := range report.Rows {
		key := faceKey(runFace{OriginalPath: row.Filename, FaceIndex: row.FaceIndex})
		tiles[row.ClusterID] = append(tiles[row.ClusterID], face.Tile{Path: readPaths[key], Box: row.Box})
	}

	labels := make([]cluster.Label, 0, len(tiles))
	for l := range tiles {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	for _, label := range labels {
		path := filepath.Join(montageDir, fmt.Sprintf("cluster_%d.jpg", label))
		if err := face.WriteMontage(path, tiles[label], face.MontageOptions{}); err != nil {
			log.Warn("Failed to write montage", "cluster", label, "error", err)
			continue
		}
		report.Montages = append(report.Montages, path)
	}
	log.Info("Montages written", "dir", montageDir, "count", len(report.Montages))
	return nil
}
