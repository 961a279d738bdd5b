// Package document converts boards to and from the persisted document
// shape and names the documents boards live in.
package document

import (
	"fmt"
	"strings"
)

// Top-level fields of a board document.
const (
	FieldID            = "id"
	FieldTitle         = "title"
	FieldOwnerID       = "ownerId"
	FieldCreatedAt     = "createdAt"
	FieldUpdatedAt     = "updatedAt"
	FieldUsers         = "users"
	FieldColumns       = "columns"
	FieldCards         = "cards"
	FieldArchivedCards = "archivedCards"

	FieldLastEditedByID         = "lastEditedById"
	FieldLastEditedByEmail      = "lastEditedByEmail"
	FieldLastEditedBySharedUser = "lastEditedBySharedUser"
	FieldWriterID               = "writerId"
	FieldWriteSeq               = "writeSeq"

	// FieldOriginalBoardPath is the only field of a shared-board pointer.
	FieldOriginalBoardPath = "originalBoardPath"
)

// BoardPath is the document an owner's board is stored in.
func BoardPath(userID, boardID string) string {
	return fmt.Sprintf("users/%s/boards/%s", userID, boardID)
}

// SharedPointerPath is the document that tells a collaborator where a
// board shared with them lives. Emails are matched case-insensitively.
func SharedPointerPath(email, boardID string) string {
	return fmt.Sprintf("sharedBoards/%s/boards/%s", strings.ToLower(email), boardID)
}

// CardField is the dotted path of one card inside a board document.
// Card ids must not contain dots.
func CardField(cardID string) string {
	return FieldCards + "." + cardID
}
