package environment

import (
	"context"
	"errors"
	"testing"

	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const java8Output = `openjdk version "1.8.0_392"
OpenJDK Runtime Environment (build 1.8.0_392-8u392-ga-1~22.04-b08)
OpenJDK 64-Bit Server VM (build 25.392-b08, mixed mode)
`

func fakeChecker() *Checker {
	c := NewChecker("java", "/")
	c.Euid = func() int { return 0 }
	c.JavaVersion = func(context.Context, string) (string, error) { return java8Output, nil }
	c.TotalMemory = func() (uint64, error) { return 64 * gb, nil }
	c.FreeDisk = func(string) (uint64, error) { return 4096 * gb, nil }
	return c
}

func TestCheckJavaVersion(t *testing.T) {
	cases := []struct {
		name    string
		output  string
		version string
		ok      bool
	}{
		{"openjdk 1.8", java8Output, "1.8.0_392", true},
		{"short 8", `openjdk version "8" 2024-01-16`, "8", true},
		{"java 11", `openjdk version "11.0.21" 2023-10-17`, "11.0.21", false},
		{"java 17", `java version "17.0.2" 2022-01-18 LTS`, "17.0.2", false},
		{"1.80 is not 1.8", `java version "1.80"`, "1.80", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			version, err := CheckJavaVersion(tc.output)
			assert.Equal(t, tc.version, version)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var javaErr *utils.IncompatibleJavaError
			require.ErrorAs(t, err, &javaErr)
			assert.Equal(t, "1.8", javaErr.Required)
			assert.Equal(t, tc.version, javaErr.Found)
		})
	}
}

func TestCheckJavaVersionGarbage(t *testing.T) {
	_, err := CheckJavaVersion("bash: java: command not found\n")
	var javaErr *utils.IncompatibleJavaError
	require.ErrorAs(t, err, &javaErr)
	assert.Equal(t, "bash: java: command not found", javaErr.Found)
}

func TestRunHealthyHost(t *testing.T) {
	report, err := fakeChecker().Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Root)
	assert.Equal(t, "1.8.0_392", report.JavaVersion)
	assert.Equal(t, uint64(64), report.MemoryGB)
	assert.Equal(t, uint64(4096), report.DiskFreeGB)
	assert.Empty(t, report.Warnings)
}

func TestRunRequiresRoot(t *testing.T) {
	c := fakeChecker()
	c.Euid = func() int { return 1000 }
	javaCalled := false
	c.JavaVersion = func(context.Context, string) (string, error) {
		javaCalled = true
		return java8Output, nil
	}
	_, err := c.Run(context.Background())
	assert.ErrorIs(t, err, utils.ErrInsufficientPermissions)
	assert.False(t, javaCalled)
}

func TestRunMissingJava(t *testing.T) {
	c := fakeChecker()
	c.JavaVersion = func(context.Context, string) (string, error) {
		return "", errors.New("executable file not found in $PATH")
	}
	_, err := c.Run(context.Background())
	assert.ErrorIs(t, err, utils.ErrConfig)
}

func TestRunWrongJava(t *testing.T) {
	c := fakeChecker()
	c.JavaVersion = func(context.Context, string) (string, error) {
		return `openjdk version "17.0.2" 2022-01-18`, nil
	}
	_, err := c.Run(context.Background())
	var javaErr *utils.IncompatibleJavaError
	assert.ErrorAs(t, err, &javaErr)
}

func TestRunLowResourcesOnlyWarn(t *testing.T) {
	c := fakeChecker()
	c.TotalMemory = func() (uint64, error) { return 16 * gb, nil }
	c.FreeDisk = func(string) (uint64, error) { return 100 * gb, nil }

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Warnings, 2)
	assert.Contains(t, report.Warnings[0], "low memory")
	assert.Contains(t, report.Warnings[1], "low disk space")
}

func TestRunProbeFailuresOnlyWarn(t *testing.T) {
	c := fakeChecker()
	c.TotalMemory = func() (uint64, error) { return 0, errors.New("no /proc") }
	c.FreeDisk = func(string) (uint64, error) { return 0, errors.New("statfs failed") }

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Warnings, 2)
}
