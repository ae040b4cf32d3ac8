package main

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

var (
	tokenUserID string
	tokenSecret string
	tokenHours  int
)

func init() {
	tokenCmd.Flags().StringVarP(&tokenUserID, "user", "u", "", "subject user id")
	tokenCmd.Flags().StringVarP(&tokenSecret, "secret", "s", "", "jwt signing secret (auth.jwtSecret)")
	tokenCmd.Flags().IntVarP(&tokenHours, "hours", "t", 24, "token validity in hours")
	tokenCmd.MarkFlagRequired("user")
	tokenCmd.MarkFlagRequired("secret")
	rootCmd.AddCommand(tokenCmd)
}

// tokenCmd mints a bearer token for local testing against the API.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an HS256 bearer token for a user",
	Run: func(cmd *cobra.Command, args []string) {
		now := time.Now().UTC()
		claims := jwt.RegisteredClaims{
			Subject:   tokenUserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(tokenHours) * time.Hour)),
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(tokenSecret))
		check(err)
		fmt.Println(signed)
	},
}
