package resolver

import (
	"sort"

	"imagecleanse/imageprocessor"
	"imagecleanse/types"
)

// Group buckets analyzed images by perceptual hash and returns every bucket
// with at least two members, ordered by group id. The group id is the shared
// hash. Unanalyzed images and empty hashes are never grouped.
func Group(images []types.ImageRecord) []types.DuplicateGroup {
	buckets := make(map[string][]types.ImageRecord)
	for _, img := range images {
		key := groupKey(img)
		if key == "" {
			continue
		}
		buckets[key] = append(buckets[key], img)
	}

	groups := make([]types.DuplicateGroup, 0, len(buckets))
	for key, members := range buckets {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return primaryBefore(members[i], members[j]) })
		primary := members[0]

		group := types.DuplicateGroup{ID: key, Members: make([]types.GroupMember, 0, len(members))}
		for i, m := range members {
			group.Members = append(group.Members, types.GroupMember{
				Membership: types.Membership{
					GroupID:      key,
					ImageID:      m.ID,
					IsPrimary:    i == 0,
					HashDistance: imageprocessor.StringDistance(groupKey(m), groupKey(primary)),
				},
				Path:      m.Path,
				BlurScore: m.BlurScore,
				Width:     m.Width,
				Height:    m.Height,
				FileSize:  m.FileSize,
			})
		}
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups
}

func groupKey(img types.ImageRecord) string {
	if !img.Analyzed {
		return ""
	}
	if img.PerceptualHash != "" {
		return img.PerceptualHash
	}
	return img.ContentHash
}

// primaryBefore orders candidates: lowest blur score, then larger area, then
// smallest path.
func primaryBefore(a, b types.ImageRecord) bool {
	if a.BlurScore != b.BlurScore {
		return a.BlurScore < b.BlurScore
	}
	if a.Area() != b.Area() {
		return a.Area() > b.Area()
	}
	return a.Path < b.Path
}
