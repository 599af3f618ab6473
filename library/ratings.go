package library

import (
	"fmt"
	"strings"
)

const defaultComment = "No comment"

// Rate records a 1-5 star rating of title by username.
func (lm *LibraryManager) Rate(title, username string, rating int, comment string) (*BookRating, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title: %w", ErrEmptyField)
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		comment = defaultComment
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, ok := lm.users[strings.TrimSpace(username)]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	r := BookRating{Title: title, Username: strings.TrimSpace(username), Rating: rating, Comment: comment}
	prev := lm.ratings
	lm.ratings = append(append([]BookRating(nil), lm.ratings...), r)
	if err := lm.persist(func() { lm.ratings = prev }, lm.saveRatings); err != nil {
		return nil, err
	}
	return &r, nil
}

// Ratings returns every rating in the order it was given.
func (lm *LibraryManager) Ratings() []BookRating {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return append([]BookRating(nil), lm.ratings...)
}

// AverageRating returns the mean rating for title (case-insensitive) and
// how many ratings it is based on.
func (lm *LibraryManager) AverageRating(title string) (float64, int) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	sum, n := 0, 0
	for _, r := range lm.ratings {
		if strings.EqualFold(r.Title, strings.TrimSpace(title)) {
			sum += r.Rating
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return float64(sum) / float64(n), n
}

// String renders a rating the way the ratings list shows it.
func (r BookRating) String() string {
	return fmt.Sprintf("Book: %s\nUser: %s\nRating: %d stars\nComment: %s\n", r.Title, r.Username, r.Rating, r.Comment)
}
