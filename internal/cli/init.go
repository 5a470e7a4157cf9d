package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new caisson project",
	Long:  `Creates a starter declaration in the current directory.`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	mainHCL := "main.hcl"
	if _, err := os.Stat(mainHCL); os.IsNotExist(err) {
		content := `# Caisson declaration.
# Resources reference each other by address; caisson orders the work.

provider "null" {
}

resource "null_resource" "example" {
  triggers = {
    greeting = "hello"
  }
}

output "example_id" {
  value = null_resource.example.id
}
`
		if err := os.WriteFile(mainHCL, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to create %s: %w", mainHCL, err)
		}
		fmt.Printf("Created %s\n", mainHCL)
	} else {
		fmt.Printf("%s already exists, leaving it alone\n", mainHCL)
	}

	fmt.Println("\nCaisson initialized successfully!")
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit main.hcl to declare your infrastructure")
	fmt.Println("  2. Run 'caisson plan' to see what would be created")
	fmt.Println("  3. Run 'caisson apply' to create it")
	return nil
}
