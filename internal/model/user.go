// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a student account created by Google sign-in. Email is the natural
// key; ID is an internal xid.
type User struct {
	ID        string    `json:"id"        db:"id"`
	GoogleID  string    `json:"-"         db:"google_id"` // OpenID "sub" claim
	Email     string    `json:"email"     db:"email"`
	Name      string    `json:"name"      db:"name"`
	AvatarURL string    `json:"avatarUrl" db:"avatar_url"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Folder is a user-private named grouping of bookmarked exams.
//
// A folder never owns an exam on its own: every id in ExamIDs is also in the
// owner's saved list. The store enforces this with a foreign key from folder
// membership to the bookmark row.
type Folder struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ExamIDs     []string  `json:"exams"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Bookmark is one saved exam together with the folders it has been filed in.
type Bookmark struct {
	ExamID    string    `json:"examId"`
	FolderIDs []string  `json:"folderIds"`
	SavedAt   time.Time `json:"savedAt"`
}

// Profile is everything the personal page needs in one read.
type Profile struct {
	User     *User         `json:"user"`
	Uploaded []ExamSummary `json:"uploadedExams"`
	Saved    []ExamSummary `json:"savedExams"`
	Folders  []Folder      `json:"folders"`
}
