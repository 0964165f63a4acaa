package org

import "errors"

var errMissingRepository = errors.New("org module needs a repository")
