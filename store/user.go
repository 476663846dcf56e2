package store

type User struct {
	ID           int32
	UID          string
	Email        string
	Nickname     string
	PasswordHash string
	// OpenRouterKey holds the user's encrypted OpenRouter API key.
	// Empty when the user has not configured an override.
	OpenRouterKey string
	CreatedTs     int64
}

type FindUser struct {
	ID    *int32
	UID   *string
	Email *string
}

type UpdateUser struct {
	ID            int32
	Nickname      *string
	OpenRouterKey *string
}

type DeleteUser struct {
	ID int32
}
