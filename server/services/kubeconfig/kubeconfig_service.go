package kubeconfig

import (
	"fmt"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
)

const (
	clusterName = "jobvars-deploy"
	userName    = "jobvars-deploy"
	contextName = "jobvars-deploy"
)

// KubeconfigService builds the kubeconfig files handed to deployment jobs.
type KubeconfigService struct {
	logger.Log
}

func NewKubeconfigService(logFactory logger.LogFactory) *KubeconfigService {
	return &KubeconfigService{
		Log: logFactory("KubeconfigService"),
	}
}

// Build returns a kubeconfig file granting access to platform, with namespace as the default
// namespace if it is set. Returns an error if the resulting configuration is not valid.
func (s *KubeconfigService) Build(platform *models.DeploymentPlatform, namespace string) (string, error) {
	if platform == nil {
		return "", fmt.Errorf("error no deployment platform")
	}
	config := clientcmdapi.NewConfig()

	cluster := clientcmdapi.NewCluster()
	cluster.Server = platform.APIURL
	if platform.CAData != "" {
		cluster.CertificateAuthorityData = []byte(platform.CAData)
	}
	config.Clusters[clusterName] = cluster

	authInfo := clientcmdapi.NewAuthInfo()
	authInfo.Token = platform.Token
	config.AuthInfos[userName] = authInfo

	kubeContext := clientcmdapi.NewContext()
	kubeContext.Cluster = clusterName
	kubeContext.AuthInfo = userName
	if namespace == "" {
		namespace = platform.Namespace
	}
	kubeContext.Namespace = namespace
	config.Contexts[contextName] = kubeContext
	config.CurrentContext = contextName

	err := clientcmd.Validate(*config)
	if err != nil {
		return "", fmt.Errorf("error validating kubeconfig: %w", err)
	}
	data, err := clientcmd.Write(*config)
	if err != nil {
		return "", fmt.Errorf("error serializing kubeconfig: %w", err)
	}
	s.WithFields(logger.Fields{
		"cluster":   platform.ClusterName,
		"namespace": namespace,
	}).Debug("Built kubeconfig")
	return string(data), nil
}
