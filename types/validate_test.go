package types_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"imagecleanse/types"
)

func feature(path, hash string, blur float64) types.ImageFeature {
	return types.ImageFeature{
		Path: path,
		Features: types.Features{
			PerceptualHash: hash,
			BlurScore:      blur,
			Width:          10,
			Height:         10,
			FileSize:       100,
			Checksum:       "c-" + path,
		},
	}
}

func TestScanReportValidateNormalizesPaths(t *testing.T) {
	report := &types.ScanReport{
		Folder: "/media",
		Images: []types.ImageFeature{feature("./a/../b.jpg", "h1", 10), feature(`sub\c.png`, "h2", 5)},
	}
	if err := report.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if report.Images[0].Path != "b.jpg" {
		t.Fatalf("expected normalized path b.jpg, got %q", report.Images[0].Path)
	}
	if report.Images[1].Path != "sub/c.png" {
		t.Fatalf("expected slash path sub/c.png, got %q", report.Images[1].Path)
	}
	if report.Images[0].Orientation != 1 {
		t.Fatalf("expected default orientation 1, got %d", report.Images[0].Orientation)
	}
}

func TestScanReportValidateRejects(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		report *types.ScanReport
	}{
		{"nil", nil},
		{"missing folder", &types.ScanReport{}},
		{"absolute path", &types.ScanReport{Folder: "f", Images: []types.ImageFeature{feature("/etc/a.jpg", "h", 1)}}},
		{"escaping path", &types.ScanReport{Folder: "f", Images: []types.ImageFeature{feature("../a.jpg", "h", 1)}}},
		{"duplicate path", &types.ScanReport{Folder: "f", Images: []types.ImageFeature{feature("a.jpg", "h", 1), feature("./a.jpg", "h", 1)}}},
		{"missing hash", &types.ScanReport{Folder: "f", Images: []types.ImageFeature{feature("a.jpg", "", 1)}}},
		{"nan blur", &types.ScanReport{Folder: "f", Images: []types.ImageFeature{feature("a.jpg", "h", math.NaN())}}},
		{"negative blur", &types.ScanReport{Folder: "f", Images: []types.ImageFeature{feature("a.jpg", "h", -1)}}},
		{"reversed timestamps", &types.ScanReport{Folder: "f", StartedAt: now, FinishedAt: now.Add(-time.Minute)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.report.Validate()
			if !errors.Is(err, types.ErrInvalidReport) {
				t.Fatalf("expected ErrInvalidReport, got %v", err)
			}
		})
	}
}

func TestGroupWriteValidate(t *testing.T) {
	valid := types.GroupWrite{Members: []types.Membership{
		{GroupID: "h1", ImageID: 1, IsPrimary: true},
		{GroupID: "h1", ImageID: 2},
	}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid write, got %v", err)
	}

	cases := []struct {
		name    string
		members []types.Membership
	}{
		{"singleton", []types.Membership{{GroupID: "h1", ImageID: 1, IsPrimary: true}}},
		{"no primary", []types.Membership{{GroupID: "h1", ImageID: 1}, {GroupID: "h1", ImageID: 2}}},
		{"two primaries", []types.Membership{{GroupID: "h1", ImageID: 1, IsPrimary: true}, {GroupID: "h1", ImageID: 2, IsPrimary: true}}},
		{"image in two groups", []types.Membership{
			{GroupID: "h1", ImageID: 1, IsPrimary: true}, {GroupID: "h1", ImageID: 2},
			{GroupID: "h2", ImageID: 1, IsPrimary: true}, {GroupID: "h2", ImageID: 3},
		}},
		{"empty group id", []types.Membership{{ImageID: 1, IsPrimary: true}, {ImageID: 2}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := types.GroupWrite{Members: tc.members}.Validate()
			if !errors.Is(err, types.ErrInvalidGroups) {
				t.Fatalf("expected ErrInvalidGroups, got %v", err)
			}
		})
	}
}

func TestFaceStateBool(t *testing.T) {
	if types.FaceUnknown.Bool() != nil {
		t.Fatal("unknown face state should map to nil")
	}
	if v := types.FacePresent.Bool(); v == nil || !*v {
		t.Fatal("present face state should map to true")
	}
	if v := types.FaceAbsent.Bool(); v == nil || *v {
		t.Fatal("absent face state should map to false")
	}
	if !types.IsBlurry(99.9, types.DefaultBlurThreshold) || types.IsBlurry(100, types.DefaultBlurThreshold) {
		t.Fatal("blur threshold must be strict less-than")
	}
}
