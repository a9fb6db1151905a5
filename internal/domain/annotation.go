package domain

// Annotation is a free-text note attached to one horse within one race.
// User-facing text calls it a comment.
type Annotation struct {
	ID        int64     `json:"id"`
	RaceID    int64     `json:"race_id"`
	HorseID   int64     `json:"horse_id"`
	Content   string    `json:"content"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// NewerThan orders annotations for the "current annotation" policy:
// the most recently updated wins and ties go to the larger id.
func (a Annotation) NewerThan(b Annotation) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt.Time) {
		return a.UpdatedAt.After(b.UpdatedAt.Time)
	}
	return a.ID > b.ID
}

// AnnotationFilter narrows a listing. Zero fields are not sent.
type AnnotationFilter struct {
	RaceID  int64
	HorseID int64
}

// NewAnnotation is the create payload.
type NewAnnotation struct {
	RaceID  int64  `json:"race_id"`
	HorseID int64  `json:"horse_id"`
	Content string `json:"content"`
}

// AnnotationPatch is a partial update; nil fields are left untouched.
type AnnotationPatch struct {
	Content  *string `json:"content,omitempty"`
	IsPublic *bool   `json:"is_public,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p AnnotationPatch) Empty() bool {
	return p.Content == nil && p.IsPublic == nil
}

// ContentPatch builds a patch that only replaces the content.
func ContentPatch(content string) AnnotationPatch {
	return AnnotationPatch{Content: &content}
}
