package main

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/sitecontent/internal/cfg"
	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// tokenSecret returns the bearer token signing secret, reading the SSM
// SecureString parameter when one is configured.
func tokenSecret(ctx context.Context, conf cfg.App, awsConfig func() (aws.Config, error)) ([]byte, error) {
	if conf.JWTSecret != "" {
		return []byte(conf.JWTSecret), nil
	}
	awsCfg, err := awsConfig()
	if err != nil {
		return nil, err
	}
	out, err := ssm.NewFromConfig(awsCfg).GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(conf.JWTSecretSSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get ssm parameter %s", conf.JWTSecretSSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, xerrors.Newf("ssm parameter %s has no value", conf.JWTSecretSSMParam)
	}
	secret := strings.TrimSpace(*out.Parameter.Value)
	if secret == "" {
		return nil, xerrors.Newf("ssm parameter %s is empty", conf.JWTSecretSSMParam)
	}
	return []byte(secret), nil
}
