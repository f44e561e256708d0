package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/repository"
)

var _ repository.CollectionRepository = (*DB)(nil)

// ToggleBookmark removes the bookmark if present (its folder edges go with it
// through the foreign key) and creates it otherwise.
func (db *DB) ToggleBookmark(ctx context.Context, userID, examID string) (bool, error) {
	var saved bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireExam(ctx, tx, examID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM bookmarks WHERE user_id = ? AND exam_id = ?`, userID, examID)
		if err != nil {
			return fmt.Errorf("sqlite: removing bookmark: %w", err)
		}
		removed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if removed > 0 {
			return nil
		}

		saved = true
		_, err = tx.ExecContext(ctx,
			`INSERT INTO bookmarks (user_id, exam_id, saved_at) VALUES (?, ?, ?)`,
			userID, examID, db.now())
		if err != nil {
			return fmt.Errorf("sqlite: adding bookmark: %w", err)
		}
		return nil
	})
	return saved, err
}

// SetFolderAssignment makes folderIDs the exact folder set of the exam for
// this user. Ids that are unknown or owned by someone else match no folder
// row and are skipped.
func (db *DB) SetFolderAssignment(ctx context.Context, userID, examID string, folderIDs []string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireExam(ctx, tx, examID); err != nil {
			return err
		}

		now := db.now()
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO bookmarks (user_id, exam_id, saved_at) VALUES (?, ?, ?)`,
			userID, examID, now,
		); err != nil {
			return fmt.Errorf("sqlite: ensuring bookmark: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM folder_exams WHERE user_id = ? AND exam_id = ?`, userID, examID,
		); err != nil {
			return fmt.Errorf("sqlite: clearing folder membership: %w", err)
		}

		for _, folderID := range folderIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO folder_exams (folder_id, user_id, exam_id, added_at)
				 SELECT id, user_id, ?, ? FROM folders WHERE id = ? AND user_id = ?`,
				examID, now, folderID, userID,
			); err != nil {
				return fmt.Errorf("sqlite: adding exam to folder %s: %w", folderID, err)
			}
		}
		return nil
	})
}

// Unbookmark is idempotent: a missing bookmark is not an error.
func (db *DB) Unbookmark(ctx context.Context, userID, examID string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE user_id = ? AND exam_id = ?`, userID, examID,
	); err != nil {
		return fmt.Errorf("sqlite: removing bookmark: %w", err)
	}
	return nil
}

func (db *DB) GetBookmark(ctx context.Context, userID, examID string) (*model.Bookmark, error) {
	b := model.Bookmark{ExamID: examID, FolderIDs: []string{}}
	err := db.conn.QueryRowContext(ctx,
		`SELECT saved_at FROM bookmarks WHERE user_id = ? AND exam_id = ?`, userID, examID,
	).Scan(&b.SavedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting bookmark: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT fe.folder_id FROM folder_exams fe
		 JOIN folders f ON f.id = fe.folder_id
		 WHERE fe.user_id = ? AND fe.exam_id = ?
		 ORDER BY f.created_at, f.rowid`, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing bookmark folders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning folder id: %w", err)
		}
		b.FolderIDs = append(b.FolderIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating bookmark folders: %w", err)
	}
	return &b, nil
}

// ListSaved returns the user's bookmarked exams, oldest bookmark first.
func (db *DB) ListSaved(ctx context.Context, userID string) ([]model.ExamSummary, error) {
	cols := make([]string, len(summaryColumns))
	for i, c := range summaryColumns {
		cols[i] = "e." + c
	}
	out, err := querySummaries(ctx, db.conn,
		`SELECT `+strings.Join(cols, ", ")+`
		 FROM bookmarks b JOIN exams e ON e.id = b.exam_id
		 WHERE b.user_id = ?
		 ORDER BY b.saved_at, b.rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing saved exams of %s: %w", userID, err)
	}
	return out, nil
}

// CreateFolder assigns a short nanoid, which is only unique within the
// folders table, not globally meaningful.
func (db *DB) CreateFolder(ctx context.Context, userID string, folder *model.Folder) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("sqlite: generating folder id: %w", err)
	}
	folder.ID = id
	folder.CreatedAt = db.now()
	folder.ExamIDs = []string{}

	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO folders (id, user_id, name, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		folder.ID, userID, folder.Name, folder.Description, folder.CreatedAt,
	); err != nil {
		return fmt.Errorf("sqlite: creating folder: %w", err)
	}
	return nil
}

// UpdateFolder returns NotFound for a folder the user does not own.
func (db *DB) UpdateFolder(ctx context.Context, userID string, folder *model.Folder) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE folders SET name = ?, description = ? WHERE id = ? AND user_id = ?`,
		folder.Name, folder.Description, folder.ID, userID)
	if err != nil {
		return fmt.Errorf("sqlite: updating folder %s: %w", folder.ID, err)
	}
	return expectOneRow(res, "folder", folder.ID)
}

// DeleteFolder drops the folder and its edges. Bookmarks are untouched.
func (db *DB) DeleteFolder(ctx context.Context, userID, folderID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM folders WHERE id = ? AND user_id = ?`, folderID, userID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting folder %s: %w", folderID, err)
	}
	return expectOneRow(res, "folder", folderID)
}

func (db *DB) RemoveExamFromFolder(ctx context.Context, userID, folderID, examID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM folders WHERE id = ? AND user_id = ?`, folderID, userID,
		).Scan(&n); err != nil {
			return fmt.Errorf("sqlite: checking folder %s: %w", folderID, err)
		}
		if n == 0 {
			return apperror.NotFound("folder", folderID)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM folder_exams WHERE folder_id = ? AND exam_id = ?`, folderID, examID,
		); err != nil {
			return fmt.Errorf("sqlite: removing exam from folder: %w", err)
		}
		return nil
	})
}

// ListFolders returns the user's folders in creation order, each with its
// exam ids in the order they were filed.
func (db *DB) ListFolders(ctx context.Context, userID string) ([]model.Folder, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM folders
		 WHERE user_id = ? ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing folders: %w", err)
	}
	folders := []model.Folder{}
	for rows.Next() {
		f := model.Folder{ExamIDs: []string{}}
		if err := rows.Scan(&f.ID, &f.Name, &f.Description, &f.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning folder: %w", err)
		}
		folders = append(folders, f)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("sqlite: iterating folders: %w", err)
	}

	index := make(map[string]int, len(folders))
	for i, f := range folders {
		index[f.ID] = i
	}

	edges, err := db.conn.QueryContext(ctx,
		`SELECT folder_id, exam_id FROM folder_exams
		 WHERE user_id = ? ORDER BY added_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing folder contents: %w", err)
	}
	defer edges.Close()
	for edges.Next() {
		var folderID, examID string
		if err := edges.Scan(&folderID, &examID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning folder edge: %w", err)
		}
		if i, ok := index[folderID]; ok {
			folders[i].ExamIDs = append(folders[i].ExamIDs, examID)
		}
	}
	if err := edges.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating folder edges: %w", err)
	}
	return folders, nil
}
