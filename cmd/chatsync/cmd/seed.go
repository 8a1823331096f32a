package cmd

import (
	"fmt"

	"github.com/nfrund/chatsync/internal/devserver"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	seedChats    int
	seedUsers    int
	seedMessages int
	seedOut      string
	seedValue    int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate a fake data set for the dev backend",
	Long: `Generate users, chats and messages with gofakeit and write them as JSON.
The first user always has id "u1".

Examples:
  chatsync seed --out seed.json
  chatsync seed --chats 25 --users 8 --messages 120 --seed 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fx := devserver.Generate(devserver.SeedOptions{
			Users:    seedUsers,
			Chats:    seedChats,
			Messages: seedMessages,
			Seed:     seedValue,
		})
		if err := devserver.SaveFixture(afero.NewOsFs(), seedOut, fx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d users and %d chats to %s\n", len(fx.Users), len(fx.Chats), seedOut)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().IntVar(&seedChats, "chats", 10, "Number of chats")
	seedCmd.Flags().IntVar(&seedUsers, "users", 5, "Number of users")
	seedCmd.Flags().IntVar(&seedMessages, "messages", 40, "Messages per chat")
	seedCmd.Flags().StringVar(&seedOut, "out", "seed.json", "Output file")
	seedCmd.Flags().Int64Var(&seedValue, "seed", 0, "Random seed (0 picks one)")
}
