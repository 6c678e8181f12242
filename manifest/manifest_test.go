package manifest

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ap0ught/familyman/cluster"
	"github.com/ap0ught/familyman/face"
)

func TestWriteAndReadFile(t *testing.T) {
	rows := []Row{
		{ClusterID: cluster.Noise, Filename: "z.jpg", FaceIndex: 0, Box: face.Box{Top: 1, Right: 2, Bottom: 3, Left: 4}},
		{ClusterID: 1, Filename: "b.jpg", FaceIndex: 1, Box: face.Box{Top: 10, Right: 20, Bottom: 30, Left: 5}},
		{ClusterID: 0, Filename: "dir, with comma/a.jpg", FaceIndex: 0},
		{ClusterID: 1, Filename: "b.jpg", FaceIndex: 0},
	}
	SortRows(rows)

	wantOrder := []string{"dir, with comma/a.jpg", "b.jpg", "b.jpg", "z.jpg"}
	for i, r := range rows {
		if r.Filename != wantOrder[i] {
			t.Fatalf("SortRows() row %d = %s, want %s", i, r.Filename, wantOrder[i])
		}
	}
	if rows[1].FaceIndex != 0 || rows[2].FaceIndex != 1 {
		t.Errorf("SortRows() did not order by face index within a photo")
	}

	path := filepath.Join(t.TempDir(), "out", "clusters.csv")
	if err := WriteFile(path, rows); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("ReadFile() = %d rows, want %d", len(got), len(rows))
	}
	for i := range rows {
		if got[i] != rows[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], rows[i])
		}
	}
}

func TestWrite_Header(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := buf.String(); got != "cluster_id,filename,face_index,top,right,bottom,left\n" {
		t.Errorf("Write(nil) = %q", got)
	}
}

func TestRead_SkipsInvalidRows(t *testing.T) {
	input := "filename,cluster_id,face_index\n" +
		"a.jpg,3,1\n" +
		"b.jpg,not-a-number,0\n" +
		",2,0\n" +
		"c.jpg,-1\n"

	rows, err := Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Read() = %+v, want 2 rows", rows)
	}
	if rows[0].ClusterID != 3 || rows[0].Filename != "a.jpg" || rows[0].FaceIndex != 1 {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].ClusterID != cluster.Noise || rows[1].FaceIndex != 0 {
		t.Errorf("row 1 = %+v", rows[1])
	}

	if _, err := Read(strings.NewReader("id,name\n1,a\n")); err == nil {
		t.Error("Read() expected error without cluster_id column")
	}
}

func TestReadMapping(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[cluster.Label]string
	}{
		{
			name:  "with header",
			input: "cluster_id,person_name\n0,Alice\n1, Bob \n",
			want:  map[cluster.Label]string{0: "Alice", 1: "Bob"},
		},
		{
			name:  "without header and with junk",
			input: "2,Carol\n\nthree,Dan\n4,\n5\n",
			want:  map[cluster.Label]string{2: "Carol"},
		},
		{
			name:  "later row wins",
			input: "7,Eve\n7,Eva\n",
			want:  map[cluster.Label]string{7: "Eva"},
		},
		{
			name:  "empty",
			input: "",
			want:  map[cluster.Label]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadMapping(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ReadMapping() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ReadMapping() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("ReadMapping()[%d] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
