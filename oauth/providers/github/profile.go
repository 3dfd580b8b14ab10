package github

import (
	"strings"

	"github.com/goliatone/go-identity/oauth"
)

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func mapProfile(user *githubUser, email string) *oauth.Profile {
	if user == nil {
		return nil
	}

	firstName, lastName := splitName(user.Name)
	if firstName == "" {
		firstName = user.Login
	}

	return &oauth.Profile{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Picture:   user.AvatarURL,
	}
}

// splitName does a best effort split of the display name, GitHub has no
// structured name fields.
func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}

	parts := strings.Fields(name)
	if len(parts) == 1 {
		return parts[0], ""
	}

	return parts[0], strings.Join(parts[1:], " ")
}
