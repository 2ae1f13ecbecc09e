package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zzenonn/zblob/internal/domain"
)

var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Manage containers",
}

var containerCreateCmd = &cobra.Command{
	Use:   "create [container-id]",
	Short: "Create an enabled container",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		account, _ := cmd.Flags().GetString("account")
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = args[0]
		}

		container := domain.Container{
			ContainerID: args[0],
			Account:     account,
			Name:        name,
			Status:      domain.ContainerEnabled,
		}
		if err := metadata.CreateContainer(context.Background(), container); err != nil {
			fmt.Printf("Error creating container: %v\n", err)
			return
		}
		fmt.Printf("Container created: %s (%s/%s)\n", container.ContainerID, container.Account, container.Name)
	},
}

func statusCmd(use, short string, status domain.ContainerStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [container-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := metadata.SetContainerStatus(context.Background(), args[0], status); err != nil {
				fmt.Printf("Error updating container: %v\n", err)
				return
			}
			fmt.Printf("Container %s is now %s\n", args[0], status)
		},
	}
}

func init() {
	containerCreateCmd.Flags().String("account", "default", "Account owning the container")
	containerCreateCmd.Flags().String("name", "", "Container name, defaults to the container id")

	containerCmd.AddCommand(containerCreateCmd)
	containerCmd.AddCommand(statusCmd("freeze", "Freeze a container, blocking writes and rebuilds", domain.ContainerFrozen))
	containerCmd.AddCommand(statusCmd("enable", "Enable a frozen container", domain.ContainerEnabled))
	rootCmd.AddCommand(containerCmd)
}
