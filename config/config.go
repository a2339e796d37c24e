package config

import (
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// JWT
	JWTSecret    string
	JWTExpiresIn time.Duration

	// AWS S3
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3BucketName       string

	// Server
	Port   string
	AppEnv string

	// File Upload
	MaxFileSize       int64
	AllowedExtensions string

	// Logging
	LogLevel string
	LogFile  string

	// Grading
	GradeWeightAssessment float64
	GradeWeightTest       float64
	GradeWeightExam       float64

	// Finance
	InvoiceDueDays int
	SalaryTaxRate  float64 // percent of base salary withheld on payroll

	// Log maintenance
	EnableLogMaintenance bool
	LogMaintenanceCron   string
	LogArchiveDays       int

	// Bootstrap
	SkipMigrate       bool
	SeedAdminUsername string
	SeedAdminPassword string
}

// GetDSN builds the connection string for the configured driver.
func (c *Config) GetDSN() string {
	switch strings.ToLower(c.DBDriver) {
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
	case "sqlite":
		return c.DBName
	default:
		return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local"
	}
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string

	// Stage & base path for SSM (allows multi-env without code changes)
	basePath := getEnv("SSM_BASE_PATH", "/schoolcore")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	basePath = strings.TrimRight(basePath, "/")
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "ap-southeast-1"))})
		if err != nil {
			log.Fatal("Failed to create AWS session:", err)
		}
		log.Printf("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssm.New(sess), prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	}

	getVal := func(key, def string) string {
		if useSSM {
			if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	}

	jwtExpires, err := parseExpiresIn(getVal("JWT_EXPIRES_IN", "24h"))
	if err != nil {
		log.Fatal("Invalid JWT_EXPIRES_IN format:", err)
	}

	maxFileSize, err := strconv.ParseInt(getVal("MAX_FILE_SIZE", "10485760"), 10, 64)
	if err != nil {
		log.Fatal("Invalid MAX_FILE_SIZE format:", err)
	}

	AppConfig = &Config{
		DBDriver:   strings.ToLower(getVal("DB_DRIVER", "mysql")),
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", "3306"),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "schoolcore"),

		RedisHost:     getVal("REDIS_HOST", "localhost"),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		JWTSecret:    getVal("JWT_SECRET", "change_me_jwt_secret"),
		JWTExpiresIn: jwtExpires,

		AWSRegion:          getVal("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:     getVal("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getVal("AWS_SECRET_ACCESS_KEY", ""),
		S3BucketName:       getVal("S3_BUCKET_NAME", "schoolcore-storage"),

		Port:   getVal("PORT", "3000"),
		AppEnv: getVal("APP_ENV", "development"),

		MaxFileSize:       maxFileSize,
		AllowedExtensions: getVal("ALLOWED_EXTENSIONS", "jpg,jpeg,png,pdf,xlsx,csv"),

		LogLevel: getVal("LOG_LEVEL", "info"),
		LogFile:  getVal("LOG_FILE", "logs/app.log"),

		GradeWeightAssessment: parseFloat(getVal("GRADE_WEIGHT_ASSESSMENT", "20"), "GRADE_WEIGHT_ASSESSMENT"),
		GradeWeightTest:       parseFloat(getVal("GRADE_WEIGHT_TEST", "30"), "GRADE_WEIGHT_TEST"),
		GradeWeightExam:       parseFloat(getVal("GRADE_WEIGHT_EXAM", "50"), "GRADE_WEIGHT_EXAM"),

		InvoiceDueDays: parseInt(getVal("INVOICE_DUE_DAYS", "30"), "INVOICE_DUE_DAYS"),
		SalaryTaxRate:  parseFloat(getVal("SALARY_TAX_RATE", "0"), "SALARY_TAX_RATE"),

		EnableLogMaintenance: strings.ToLower(getVal("ENABLE_LOG_MAINTENANCE", "true")) == "true",
		LogMaintenanceCron:   getVal("LOG_MAINTENANCE_CRON", "@hourly"),
		LogArchiveDays:       parseInt(getVal("LOG_ARCHIVE_DAYS", "30"), "LOG_ARCHIVE_DAYS"),

		SkipMigrate:       strings.ToLower(getVal("SKIP_MIGRATE", "false")) == "true",
		SeedAdminUsername: getVal("SEED_ADMIN_USERNAME", ""),
		SeedAdminPassword: getVal("SEED_ADMIN_PASSWORD", ""),
	}

	if err := CheckGradeWeights(AppConfig.GradeWeightAssessment, AppConfig.GradeWeightTest, AppConfig.GradeWeightExam); err != nil {
		log.Fatal("Invalid grade weights: ", err)
	}

	validateConfig(AppConfig, useSSM)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseExpiresIn accepts Go durations plus the d (days) and w (weeks) shorthands.
func parseExpiresIn(value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err == nil {
		return d, nil
	}
	s := strings.TrimSpace(strings.ToLower(value))
	if len(s) > 1 {
		unit := s[len(s)-1]
		if n, convErr := strconv.Atoi(s[:len(s)-1]); convErr == nil {
			switch unit {
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n*7) * 24 * time.Hour, nil
			}
		}
	}
	return 0, err
}

func parseFloat(value, key string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		log.Fatalf("Invalid %s format: %v", key, err)
	}
	return f
}

func parseInt(value, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Fatalf("Invalid %s format: %v", key, err)
	}
	return n
}

// CheckGradeWeights requires non-negative weights summing to 100.
func CheckGradeWeights(assessment, test, exam float64) error {
	if assessment < 0 || test < 0 || exam < 0 {
		return fmt.Errorf("weights must not be negative (assessment=%v test=%v exam=%v)", assessment, test, exam)
	}
	if sum := assessment + test + exam; math.Abs(sum-100) > 1e-6 {
		return fmt.Errorf("weights must sum to 100, got %v", sum)
	}
	return nil
}

// fetchSSMParameters reads all parameters under prefix and returns map with UPPERCASE keys.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	next := aws.String("")
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
		}
		if *next != "" {
			in.NextToken = next
		}
		resp, err := client.GetParametersByPath(in)
		if err != nil {
			log.Printf("Warning: unable to fetch SSM parameters for prefix %s: %v", prefix, err)
			break
		}
		for _, p := range resp.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			name := *p.Name
			key := name
			if idx := strings.LastIndex(name, "/"); idx >= 0 {
				key = name[idx+1:]
			}
			if key == "" {
				continue
			}
			out[strings.ToUpper(key)] = *p.Value
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out
}

func validateConfig(c *Config, usedSSM bool) {
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		log.Fatalf("Unsupported DB_DRIVER %q (mysql, postgres, sqlite)", c.DBDriver)
	}
	if c.InvoiceDueDays < 0 {
		log.Fatal("INVOICE_DUE_DAYS must not be negative")
	}
	if c.SalaryTaxRate < 0 || c.SalaryTaxRate > 100 {
		log.Fatal("SALARY_TAX_RATE must be between 0 and 100")
	}

	// Only enforce stricter rules in production
	if strings.ToLower(c.AppEnv) != "production" {
		return
	}
	required := map[string]string{
		"DB_PASSWORD": c.DBPassword,
		"JWT_SECRET":  c.JWTSecret,
	}
	for k, v := range required {
		if strings.TrimSpace(v) == "" {
			log.Fatalf("Missing required secret %s in production (SSM=%v)", k, usedSSM)
		}
	}
	if len(c.JWTSecret) < 16 {
		log.Fatal("JWT_SECRET too short (min 16 chars)")
	}
}
