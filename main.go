// Command rankings ingests university ranking tables into a canonical store.
package main

import "github.com/JakeFAU/university-rankings/cmd"

func main() {
	cmd.Execute()
}
