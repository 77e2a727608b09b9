package ason

import (
	"fmt"
	"strings"

	"github.com/aretw0/ason/pkg/script"
)

const scriptInstructionsTemplate = `You are a Go script generator.
Output only Go statements that form the body of a function returning any (no package clause, no imports, no function declarations, no explanations, no comments) unless the task cannot be executed.

Strict rules:
1. Use only the API inside <api> … </api> and these already imported standard library packages: %[3]s.
2. The root object is the variable %[1]s. Reach every other object through the methods of %[1]s and of the objects it returns.
3. If asked to return data, end with a single return statement of a simple value taken from the objects.
4. Call a method only on the type that declares it. Never attach a method call to a different type, even if names look similar.
5. Never build API values with composite literals such as SalesView{}. Obtain them from API methods instead.
6. If the task cannot be completed with the available API and standard Go, output a single plain English sentence starting with the word "Cannot" explaining briefly. Do NOT output any code in that case.

<api>
%[2]s
</api>
`

// ScriptInstructions renders the system prompt that asks a generator for a
// script against signatures.
func ScriptInstructions(signatures string) string {
	return fmt.Sprintf(scriptInstructionsTemplate, RootVar, signatures, strings.Join(script.DefaultImports, ", "))
}
