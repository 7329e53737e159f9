package visioncapture

import (
	"errors"
	"testing"
)

func TestToDenseImage_PaddingArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		frame    RawFrame
		wantRows int
		wantCols int
	}{
		{
			name: "no padding",
			frame: RawFrame{
				Width: 640, Height: 480, Channels: 3, Stride: 640 * 3,
				Status: FrameComplete,
			},
			wantRows: 480,
			wantCols: 640,
		},
		{
			name: "x padding",
			frame: RawFrame{
				Width: 736, Height: 1280, XPadding: 16, Channels: 3,
				Stride: (736 + 16) * 3, Status: FrameComplete,
			},
			wantRows: 1280,
			wantCols: 752,
		},
		{
			name: "both paddings",
			frame: RawFrame{
				Width: 800, Height: 1280, XPadding: 8, YPadding: 4, Channels: 1,
				Stride: 808, Status: FrameComplete,
			},
			wantRows: 1284,
			wantCols: 808,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.frame.Data = make([]byte, tt.frame.Stride*(tt.frame.Height+tt.frame.YPadding))
			img, err := ToDenseImage(&tt.frame)
			if err != nil {
				t.Fatalf("ToDenseImage: %v", err)
			}
			if img.Rows != tt.wantRows {
				t.Errorf("Rows = %d, want %d", img.Rows, tt.wantRows)
			}
			if img.Cols != tt.wantCols {
				t.Errorf("Cols = %d, want %d", img.Cols, tt.wantCols)
			}
			if img.Channels != tt.frame.Channels {
				t.Errorf("Channels = %d, want %d", img.Channels, tt.frame.Channels)
			}
			if img.Stride != tt.frame.Stride {
				t.Errorf("Stride = %d, want %d (must be verbatim)", img.Stride, tt.frame.Stride)
			}
		})
	}
}

// The view must alias the frame's backing array, not copy it.
func TestToDenseImage_ZeroCopy(t *testing.T) {
	f := &RawFrame{
		Width: 4, Height: 2, Channels: 1, Stride: 4,
		Status: FrameComplete,
		Data:   []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}

	img, err := ToDenseImage(f)
	if err != nil {
		t.Fatalf("ToDenseImage: %v", err)
	}
	if &img.Data[0] != &f.Data[0] {
		t.Error("Data was copied; expected the same backing array")
	}

	f.Data[3] = 99
	if img.Data[3] != 99 {
		t.Error("mutation through the frame not visible through the view")
	}
}

func TestToDenseImage_RejectsIncomplete(t *testing.T) {
	for _, status := range []FrameStatus{
		FrameMissingPackets,
		FramePayloadTruncated,
		FrameCRCError,
		FrameUnknownError,
	} {
		f := &RawFrame{Width: 4, Height: 2, Channels: 1, Stride: 4, Status: status,
			Data: make([]byte, 8)}
		if _, err := ToDenseImage(f); !errors.Is(err, ErrIncompleteFrame) {
			t.Errorf("status %s: err = %v, want ErrIncompleteFrame", status, err)
		}
	}
}
