// Package matching ranks candidates for ideas and ideas for users by
// skill overlap. The scoring functions are pure and deterministic over
// the snapshot they are given; they never write.
package matching

import (
	"sort"
	"strings"

	"github.com/ideaforge/ideaforge-go/internal/store"
)

// SkillMatch is one ranked candidate for an idea.
type SkillMatch struct {
	UserID           string   `json:"user_id"`
	DisplayName      string   `json:"display_name"`
	Score            float64  `json:"score"`
	MatchedSkills    []string `json:"matched_skills"`
	AdditionalSkills []string `json:"additional_skills"`
}

// IdeaMatch is one ranked idea for a user.
type IdeaMatch struct {
	IdeaID        string   `json:"idea_id"`
	Title         string   `json:"title"`
	Score         float64  `json:"score"`
	MatchedSkills []string `json:"matched_skills"`
}

// Proficiency weights for matched skills.
const (
	weightExpert       = 1.0
	weightAdvanced     = 0.8
	weightIntermediate = 0.6
	weightBeginner     = 0.4
	weightUnknown      = 0.2
)

func levelWeight(level string) float64 {
	switch strings.ToLower(level) {
	case store.LevelExpert:
		return weightExpert
	case store.LevelAdvanced:
		return weightAdvanced
	case store.LevelIntermediate:
		return weightIntermediate
	case store.LevelBeginner:
		return weightBeginner
	}
	return weightUnknown
}

// scoreProfile computes a candidate's fit for a required-skill set.
//
//	score = 0.7·coverage + 0.2·levelScore + 0.1·min(|additional|/5, 1)
//
// coverage is the share of required skills the candidate holds; an empty
// required set yields coverage 0 rather than a division by zero.
// levelScore is the mean proficiency weight over the matched skills.
func scoreProfile(profile *store.Profile, required []string) (score float64, matched, additional []string) {
	requiredSet := make(map[string]bool, len(required))
	for _, s := range required {
		requiredSet[normalizeSkill(s)] = true
	}

	matched = []string{}
	additional = []string{}
	var levelSum float64
	for _, ps := range profile.Skills {
		if requiredSet[normalizeSkill(ps.Skill)] {
			matched = append(matched, ps.Skill)
			levelSum += levelWeight(ps.Level)
		} else {
			additional = append(additional, ps.Skill)
		}
	}

	var coverage, levelScore float64
	if len(required) > 0 {
		coverage = float64(len(matched)) / float64(len(required))
	}
	if len(matched) > 0 {
		levelScore = levelSum / float64(len(matched))
	}
	bonus := min(float64(len(additional))/5, 1)

	return 0.7*coverage + 0.2*levelScore + 0.1*bonus, matched, additional
}

// scoreIdea computes an idea's fit for a user's skill set.
//
//	score = 0.7·ratio + 0.3·min(|matched|/5, 1)
//
// ratio is the share of the idea's required skills the user holds.
func scoreIdea(idea *store.Idea, userSkills map[string]bool) (score float64, matched []string) {
	matched = []string{}
	for _, s := range idea.RequiredSkills {
		if userSkills[normalizeSkill(s)] {
			matched = append(matched, s)
		}
	}

	var ratio float64
	if len(idea.RequiredSkills) > 0 {
		ratio = float64(len(matched)) / float64(len(idea.RequiredSkills))
	}
	countBonus := min(float64(len(matched))/5, 1)

	return 0.7*ratio + 0.3*countBonus, matched
}

func normalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// sortAndTruncate orders matches by score descending, keeping input order
// for equal scores, and truncates to limit (limit <= 0 means no cap).
func sortAndTruncate[T any](matches []T, score func(T) float64, limit int) []T {
	sort.SliceStable(matches, func(i, j int) bool {
		return score(matches[i]) > score(matches[j])
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
